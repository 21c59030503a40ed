package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/xhad/ayurchat/internal/models"
	"github.com/xhad/ayurchat/pkg/chat"
)

type submitter interface {
	Submit(ctx context.Context, raw string, stream *chat.Stream) (models.Turn, error)
}

type reply struct {
	turn models.Turn
	err  error
}

// runREPL reads one prompt per line until EOF or "exit". Turn failures are
// printed and the loop continues. The busy spinner is drawn on status.
func runREPL(ctx context.Context, in io.Reader, out, status io.Writer, session submitter, streaming bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	userPrompt := color.New(color.FgGreen).FprintfFunc()
	assistantPrompt := color.New(color.FgCyan).FprintfFunc()
	errorLine := color.New(color.FgRed).FprintfFunc()

	fmt.Fprintln(out, color.CyanString("\nAsk about everyday Ayurveda (type 'exit' to quit)"))

	for {
		userPrompt(out, "\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := scanner.Text()
		if strings.EqualFold(strings.TrimSpace(query), "exit") {
			break
		}
		if strings.TrimSpace(query) == "" {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		spinner := getSpinner(status, "🤖 Generating response...")

		if !streaming {
			turn, err := session.Submit(ctx, query, nil)
			spinner.Finish()
			fmt.Fprint(status, "\r")

			if err != nil {
				errorLine(out, "Error: %v\n", err)
				continue
			}
			assistantPrompt(out, "Assistant: %s\n", turn.Text)
			continue
		}

		stream := chat.NewStream(16)
		done := make(chan reply, 1)
		go func() {
			turn, err := session.Submit(ctx, query, stream)
			done <- reply{turn: turn, err: err}
		}()

		started := false
		for tok := range stream.Tokens() {
			if !started {
				spinner.Finish()
				fmt.Fprint(status, "\r")
				assistantPrompt(out, "Assistant: ")
				started = true
			}
			fmt.Fprint(out, tok)
		}

		r := <-done
		if !started {
			spinner.Finish()
			fmt.Fprint(status, "\r")
		}
		switch {
		case r.err != nil:
			errorLine(out, "\nError: %v\n", r.err)
		case !started:
			assistantPrompt(out, "Assistant: %s\n", r.turn.Text)
		default:
			fmt.Fprintln(out)
		}
	}

	return scanner.Err()
}
