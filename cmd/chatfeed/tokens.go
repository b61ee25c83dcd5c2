package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/weaviate/tiktoken-go"
)

func newTokensCommand() *cobra.Command {
	var file string
	var feedID string
	var encoding string
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Count tokens of a transcript from a file or a stored feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := loadTranscript(file, feedID)
			if err != nil {
				return err
			}
			return printTokenStats(cmd, content, encoding)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "transcript file to count")
	cmd.Flags().StringVar(&feedID, "feed", "", "stored feed to count, uses the configured store")
	cmd.Flags().StringVar(&encoding, "encoding", "cl100k_base", "tiktoken encoding name")
	return cmd
}

func loadTranscript(file, feedID string) (string, error) {
	file = strings.TrimSpace(file)
	feedID = strings.TrimSpace(feedID)
	switch {
	case file != "" && feedID != "":
		return "", errors.New("pass either --file or --feed, not both")
	case file != "":
		blob, err := os.ReadFile(file)
		if err != nil {
			return "", errors.Wrapf(err, "read transcript %q", file)
		}
		return string(blob), nil
	case feedID != "":
		return loadFeedTranscript(feedID)
	default:
		return "", errors.New("pass --file or --feed")
	}
}

func loadFeedTranscript(feedID string) (string, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return "", err
	}
	store, err := buildStore(cfg)
	if err != nil {
		return "", err
	}
	defer func() { _ = store.Close() }()

	snap, err := store.GetSnapshot(context.Background(), feedID, 0, 0)
	if err != nil {
		return "", err
	}
	if len(snap.Messages) == 0 {
		return "", errors.Errorf("feed %q has no stored messages", feedID)
	}
	var b strings.Builder
	for _, msg := range snap.Messages {
		fmt.Fprintf(&b, "%s: %s\n", msg.User, msg.Content)
	}
	return b.String(), nil
}

func printTokenStats(cmd *cobra.Command, content, encoding string) error {
	codec, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return errors.Wrapf(err, "initialize encoding %q", encoding)
	}
	tokens := codec.Encode(content, nil, nil)
	lineCount := strings.Count(content, "\n") + 1

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Tokens: %d\n", len(tokens))
	fmt.Fprintf(out, "Lines:  %d\n", lineCount)
	fmt.Fprintf(out, "Size:   %d bytes\n", len(content))
	return nil
}
