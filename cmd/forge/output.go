package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"

	"ideaforge/internal/domain"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func challengeStatus(s domain.ChallengeStatus) string {
	switch s {
	case domain.ChallengeOpen:
		return okColor.Sprint(s)
	default:
		return dimColor.Sprint(s)
	}
}

func submissionStatus(s domain.SubmissionStatus) string {
	switch s {
	case domain.SubmissionAccepted:
		return okColor.Sprint(s)
	case domain.SubmissionRejected:
		return errColor.Sprint(s)
	default:
		return warnColor.Sprint(s)
	}
}

func renderChallenges(items []domain.Challenge) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Title", "Reward", "Status", "Creator"})
	for _, c := range items {
		tw.AppendRow(table.Row{c.ID, c.Title, c.Reward, challengeStatus(c.Status), c.Creator})
	}
	tw.Render()
	return nil
}

func renderTokens(items []domain.Token) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Owner", "URI", "Updated"})
	for _, t := range items {
		tw.AppendRow(table.Row{t.ID, t.Owner, t.URI, t.UpdatedAt})
	}
	tw.Render()
	return nil
}

func renderSubmissions(items []domain.Submission) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Challenge", "Submitter", "Status"})
	for _, s := range items {
		tw.AppendRow(table.Row{s.ID, s.ChallengeID, s.Submitter, submissionStatus(s.Status)})
	}
	tw.Render()
	return nil
}

func renderEvaluations(items []domain.Evaluation) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"Idea", "Score", "Feedback", "Evaluator"})
	for _, ev := range items {
		tw.AppendRow(table.Row{ev.IdeaID, ev.Score, ev.Feedback, ev.Evaluator})
	}
	tw.Render()
	return nil
}

func renderEvents(items []domain.Event) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
	for _, e := range items {
		tw.AppendRow(table.Row{e.ID, e.TS, e.Type, fmt.Sprintf("%s/%d", e.Registry, e.EntityID), e.Actor, e.Payload})
	}
	tw.Render()
	return nil
}

func renderAPIKeys(items []domain.APIKey) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Principal", "Name", "Created"})
	for _, k := range items {
		tw.AppendRow(table.Row{k.ID, k.Principal, k.Name, k.CreatedAt})
	}
	tw.Render()
	return nil
}
