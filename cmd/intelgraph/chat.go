package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corvus-sec/intelgraph/internal/llm"
	"github.com/corvus-sec/intelgraph/internal/rag"
)

var (
	chatShowSources  bool
	chatSystemPrompt string
)

var chatCmd = &cobra.Command{
	Use:   "chat [QUESTION]",
	Short: "Chat with retrieval-grounded answers",
	Long: `Ask questions answered by the LLM with context retrieved from the
active corpus version. With a question argument the answer streams once
and the command exits; without one an interactive session starts.

When no corpus is ingested or retrieval fails, the conversation
continues ungrounded and says so.

Examples:
  # One-shot question
  intelgraph chat "how do adversaries use spearphishing?"

  # Interactive session with source listing
  intelgraph chat --sources`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatShowSources, "sources", false, "list the cited entities after each answer")
	chatCmd.Flags().StringVar(&chatSystemPrompt, "system", "", "override the default system instruction")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	e, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close(ctx)

	if len(args) == 1 {
		_, err := askOnce(cmd, e, args[0], nil)
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Interactive session. Empty line or Ctrl-D exits.")
	scanner := bufio.NewScanner(os.Stdin)
	var history []llm.Message

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			break
		}

		answer, err := askOnce(cmd, e, question, history)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		history = append(history,
			llm.NewUserMessage(question),
			llm.NewAssistantMessage(answer),
		)
	}
	return scanner.Err()
}

func askOnce(cmd *cobra.Command, e *engine, question string, history []llm.Message) (string, error) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	result, err := e.rag.Chat(ctx, question, rag.ChatOptions{
		History:      history,
		SystemPrompt: chatSystemPrompt,
	})
	if err != nil {
		return "", err
	}

	if !result.Context.Grounded() {
		fmt.Fprintln(out, "(no corpus grounding available)")
	}

	var answer strings.Builder
	for chunk := range result.Chunks {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		fmt.Fprint(out, chunk.Content)
		answer.WriteString(chunk.Content)
	}
	fmt.Fprintln(out)

	if chatShowSources && result.Context.Grounded() {
		fmt.Fprintln(out, "\nSources:")
		for _, s := range result.Context.Snippets {
			fmt.Fprintf(out, "  %s (%s) %s\n", s.EntityID, s.EntityType, s.Name)
		}
	}
	return answer.String(), nil
}
