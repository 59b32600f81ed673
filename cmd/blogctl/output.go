package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cppla/inkwell/models"
)

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func writePlain(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writePostList(w io.Writer, posts []models.Post) error {
	if len(posts) == 0 {
		return writePlain(w, "no posts\n")
	}
	for _, p := range posts {
		if err := writePlain(w, "%s\n", formatPostLine(p)); err != nil {
			return err
		}
	}
	return nil
}

func formatPostLine(p models.Post) string {
	line := fmt.Sprintf("%s  %s  %s by %s", p.ID, formatTime(p.CreatedAt), p.Title, p.Author)
	if n := len(p.Attachments); n > 0 {
		line += fmt.Sprintf(" [%d attachment(s)]", n)
	}
	return line
}

func writePostDetail(w io.Writer, p models.Post) error {
	lines := []string{
		fmt.Sprintf("id: %s", p.ID),
		fmt.Sprintf("title: %s", p.Title),
		fmt.Sprintf("author: %s", p.Author),
		fmt.Sprintf("created_at: %s", formatTime(p.CreatedAt)),
		"",
		p.Content,
	}
	if len(p.Attachments) > 0 {
		lines = append(lines, "", "attachments:")
		for _, a := range p.Attachments {
			lines = append(lines, fmt.Sprintf("  %s (%s, %d bytes) %s", a.OriginalName, a.MimeType, a.Size, a.URL))
		}
	}
	return writePlain(w, "%s\n", strings.Join(lines, "\n"))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
