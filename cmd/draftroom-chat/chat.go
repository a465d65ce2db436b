// ABOUTME: Interactive chat loop for draftroom-chat.
// ABOUTME: Slash commands, live streaming display, action application, export.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/draftroom/draftroom-client/internal/api"
	"github.com/draftroom/draftroom-client/internal/assistant"
	"github.com/draftroom/draftroom-client/internal/config"
	"github.com/draftroom/draftroom-client/internal/docprep"
	"github.com/draftroom/draftroom-client/internal/export"
)

// displayPollInterval is how often the loop repaints streaming output.
const displayPollInterval = 50 * time.Millisecond

type chatApp struct {
	cfg    *config.Config
	prefs  *Prefs
	logger *slog.Logger
	client *api.Client
	ctrl   *assistant.Controller

	reasoning      bool
	lastExchangeID string

	// document is the raw text of the attached manuscript; every question
	// carries a query-aware excerpt of it until /detach.
	document     string
	documentPath string
}

// documentContext prepares the attached document excerpt for one question.
func (a *chatApp) documentContext(input string) string {
	if a.document == "" {
		return ""
	}
	question, _ := assistant.ParseCommand(input, a.reasoning)
	return docprep.Prepare(a.document, question, a.cfg.Document.MaxChars)
}

func (a *chatApp) loop(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		_, channelID := a.ctrl.ActiveChannel()
		if channelID != "" {
			fmt.Printf("[%s]> ", channelID)
		} else {
			fmt.Print("> ")
		}

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if done := a.handleCommand(ctx, input); done {
			fmt.Println()
			continue
		}

		// Everything else, including /reason-prefixed questions, goes to
		// the assistant.
		if err := a.ask(ctx, input); err != nil {
			fmt.Printf("[error] %v\n", err)
		}
		fmt.Println()
	}
}

// handleCommand runs local slash commands. Returns false when the input
// should be submitted to the assistant instead.
func (a *chatApp) handleCommand(ctx context.Context, input string) bool {
	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/help":
		printHelp()

	case "/use":
		parts := strings.Fields(args)
		switch len(parts) {
		case 1:
			projectID, _ := a.ctrl.ActiveChannel()
			if projectID == "" {
				fmt.Println("No project selected yet. Use: /use <project> <channel>")
				return true
			}
			a.useChannel(ctx, projectID, parts[0])
		case 2:
			a.useChannel(ctx, parts[0], parts[1])
		default:
			fmt.Println("Usage: /use <project> <channel>  or  /use <channel>")
		}

	case "/channels":
		if err := a.listChannels(ctx); err != nil {
			fmt.Printf("[error] %v\n", err)
		}

	case "/reason":
		if args == "" {
			a.reasoning = !a.reasoning
			fmt.Printf("Extended reasoning default: %v\n", a.reasoning)
		} else {
			// "/reason <question>" is a question, not a toggle.
			return false
		}

	case "/attach":
		if args == "" {
			if a.documentPath != "" {
				fmt.Printf("Attached: %s (%d chars)\n", a.documentPath, len(a.document))
			} else {
				fmt.Println("Usage: /attach <file>")
			}
			return true
		}
		data, err := os.ReadFile(args)
		if err != nil {
			fmt.Printf("[error] %v\n", err)
			return true
		}
		a.document = string(data)
		a.documentPath = args
		fmt.Printf("Attached %s (%d chars); each question now carries a relevant excerpt\n",
			args, len(a.document))

	case "/detach":
		a.document = ""
		a.documentPath = ""
		fmt.Println("Document detached")

	case "/refresh":
		if err := a.ctrl.RefreshHistory(ctx); err != nil {
			fmt.Printf("[error] %v\n", err)
		} else {
			fmt.Printf("History refreshed, %d exchanges\n", len(a.ctrl.Exchanges()))
		}

	case "/apply":
		if err := a.applyAction(ctx, args); err != nil {
			fmt.Printf("[error] %v\n", err)
		}

	case "/export":
		if err := a.exportTranscript(args); err != nil {
			fmt.Printf("[error] %v\n", err)
		}

	case "/clear":
		if err := a.ctrl.ClearHistory(ctx); err != nil {
			fmt.Printf("[error] %v\n", err)
		} else {
			fmt.Println("History cleared")
		}

	default:
		return false
	}
	return true
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /use <project> <channel>  Switch to a channel")
	fmt.Println("  /use <channel>            Switch channel within the current project")
	fmt.Println("  /channels                 List channels in the current project")
	fmt.Println("  /reason                   Toggle extended reasoning for future questions")
	fmt.Println("  /reason <question>        Ask one question with extended reasoning")
	fmt.Println("  /attach <file>            Attach a document; questions carry excerpts of it")
	fmt.Println("  /detach                   Stop attaching document excerpts")
	fmt.Println("  /apply <n>                Apply suggested action n from the last answer")
	fmt.Println("  /refresh                  Re-sync history with the server")
	fmt.Println("  /export [path]            Export the transcript as HTML")
	fmt.Println("  /clear                    Clear this channel's history")
	fmt.Println("  /help                     Show this help")
	fmt.Println("  /quit                     Exit")
}

// useChannel activates a channel and syncs its history.
func (a *chatApp) useChannel(ctx context.Context, projectID, channelID string) {
	a.ctrl.ActivateChannel(ctx, projectID, channelID)
	a.lastExchangeID = ""

	if err := a.ctrl.RefreshHistory(ctx); err != nil {
		fmt.Printf("[warn] could not sync history: %v\n", err)
	}
	exchanges := a.ctrl.Exchanges()
	fmt.Printf("Now in %s/%s (%d exchanges)\n", projectID, channelID, len(exchanges))
	if n := len(exchanges); n > 0 {
		last := exchanges[n-1]
		fmt.Printf("Last question: %s\n", last.Question)
	}
}

func (a *chatApp) listChannels(ctx context.Context) error {
	projectID, activeChannel := a.ctrl.ActiveChannel()
	if projectID == "" {
		return errors.New("no project selected, use /use <project> <channel> first")
	}

	channels, err := a.client.Channels(ctx, projectID)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		fmt.Println("No channels in this project")
		return nil
	}

	fmt.Println("Channels:")
	for _, ch := range channels {
		marker := " "
		if ch.ID == activeChannel {
			marker = "*"
		}
		if ch.Topic != "" {
			fmt.Printf(" %s %s: %s — %s\n", marker, ch.ID, ch.Name, ch.Topic)
		} else {
			fmt.Printf(" %s %s: %s\n", marker, ch.ID, ch.Name)
		}
	}
	return nil
}

// ask submits a question and paints the answer as it streams or reveals.
func (a *chatApp) ask(ctx context.Context, input string) error {
	type outcome struct {
		id  string
		err error
	}
	resCh := make(chan outcome, 1)

	ask := assistant.Ask{
		Input:           input,
		Reasoning:       a.reasoning,
		Scope:           a.cfg.Assistant.Scope,
		DocumentContext: a.documentContext(input),
	}
	go func() {
		id, err := a.ctrl.Submit(ctx, ask)
		resCh <- outcome{id: id, err: err}
	}()

	printed := ""
	ticker := time.NewTicker(displayPollInterval)
	defer ticker.Stop()

	for {
		select {
		case res := <-resCh:
			if res.err != nil {
				if errors.Is(res.err, context.Canceled) {
					fmt.Println("\n[cancelled]")
					return nil
				}
				if printed != "" {
					fmt.Println()
				}
				return res.err
			}
			a.printFinal(res.id, printed)
			a.lastExchangeID = res.id
			return nil

		case <-ticker.C:
			printed = a.printProgress(printed)

		case <-ctx.Done():
			a.ctrl.Cancel()
			<-resCh
			fmt.Println()
			return nil
		}
	}
}

// printProgress prints whatever new display text appeared since the last
// poll and returns the total printed so far.
func (a *chatApp) printProgress(printed string) string {
	exchanges := a.ctrl.Exchanges()
	if len(exchanges) == 0 {
		return printed
	}
	last := exchanges[len(exchanges)-1]
	if last.Status != assistant.StatusStreaming {
		return printed
	}
	d := last.DisplayMessage
	if len(d) > len(printed) && strings.HasPrefix(d, printed) {
		fmt.Print(d[len(printed):])
		return d
	}
	return printed
}

// printFinal flushes the remainder of the completed answer plus its
// citations and suggested actions.
func (a *chatApp) printFinal(id, printed string) {
	var ex *assistant.Exchange
	for _, candidate := range a.ctrl.Exchanges() {
		if candidate.ID == id {
			ex = &candidate
			break
		}
	}
	if ex == nil {
		return
	}

	final := ex.DisplayMessage
	switch {
	case strings.HasPrefix(final, printed):
		fmt.Print(final[len(printed):])
	default:
		// The formatted message diverged from the streamed raw text
		// (citations resolved, action block stripped); repaint it.
		if printed != "" {
			fmt.Println()
			fmt.Println(color.HiBlackString("---"))
		}
		fmt.Print(final)
	}
	fmt.Println()

	if ex.Response == nil {
		return
	}
	gray := color.New(color.FgHiBlack)
	if ex.Response.Model != "" || ex.Response.ReasoningUsed {
		note := ex.Response.Model
		if ex.Response.ReasoningUsed {
			note += " (extended reasoning)"
		}
		gray.Println(strings.TrimSpace(note))
	}
	if len(ex.Response.Citations) > 0 {
		labels := make([]string, 0, len(ex.Response.Citations))
		for _, c := range ex.Response.Citations {
			labels = append(labels, c.Label)
		}
		gray.Printf("Sources: %s\n", strings.Join(labels, ", "))
	}
	if len(ex.Response.SuggestedActions) > 0 {
		fmt.Println("Suggested actions:")
		for i, action := range ex.Response.SuggestedActions {
			fmt.Printf("  %d. [%s] %s\n", i+1, action.ActionType, action.Summary)
		}
		fmt.Println("Apply one with /apply <n>")
	}
}

// applyAction runs a suggested action from the most recent answer.
func (a *chatApp) applyAction(ctx context.Context, args string) error {
	if a.lastExchangeID == "" {
		return errors.New("no answer with suggested actions yet")
	}
	n, err := strconv.Atoi(args)
	if err != nil || n < 1 {
		return errors.New("usage: /apply <n>")
	}

	if err := a.ctrl.ApplyAction(ctx, a.lastExchangeID, n-1); err != nil {
		return err
	}
	fmt.Printf("Applied action %d\n", n)
	return nil
}

// exportTranscript writes the current conversation as an HTML file.
func (a *chatApp) exportTranscript(path string) error {
	projectID, channelID := a.ctrl.ActiveChannel()
	if channelID == "" {
		return errors.New("no active channel")
	}

	if path == "" {
		dir := a.prefs.Export.Dir
		if dir == "" {
			dir = "."
		}
		name := fmt.Sprintf("draftroom-%s-%s.html", channelID, time.Now().Format("20060102-150405"))
		path = filepath.Join(dir, name)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	meta := export.Meta{ProjectID: projectID, ChannelID: channelID, ExportedAt: time.Now()}
	if err := export.HTML(f, meta, a.ctrl.Exchanges()); err != nil {
		return err
	}

	fmt.Printf("Transcript written to %s\n", path)
	return nil
}
