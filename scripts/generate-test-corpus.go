//go:build ignore

// Package main generates a synthetic Markdown vault for benchmarking.
// Usage: go run scripts/generate-test-corpus.go -notes 1000 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	numNotes  = flag.Int("notes", 1000, "Number of notes to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var noteTemplate = `---
title: %s
tags: [%s]
created: %s
---
# %s

## Summary

%s

## Notes

%s

## Tasks

%s

## Related

%s
`

var dailyTemplate = `# %s

## Log

%s

## Todo

%s
`

var (
	topics = []string{
		"Compost", "Greenhouse", "Sourdough", "Roadmap", "Hiring",
		"Budget", "Allotment", "Beekeeping", "Cycling", "Piano",
		"Kubernetes", "Postgres", "Travel", "Reading", "Meditation",
		"Woodwork", "Photography", "Running", "Tax", "Recipes",
	}
	tags = []string{
		"garden", "work", "home", "health", "finance",
		"learning", "project", "idea", "reference", "someday",
	}
	folders = []string{"garden", "work", "home", "learning", "projects", "reference"}
	words   = []string{
		"seed", "soil", "water", "harvest", "plan", "review", "meeting", "draft",
		"budget", "schedule", "notes", "idea", "weekly", "monthly", "list", "goal",
		"practice", "habit", "recipe", "oven", "starter", "flour", "cluster", "query",
		"index", "backup", "trip", "ticket", "book", "chapter", "breath", "timer",
	}
	actions = []string{
		"Call", "Order", "Review", "Write", "Plan",
		"Book", "Fix", "Clean", "Read", "Send",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for _, folder := range append(folders, "daily") {
		if err := os.MkdirAll(filepath.Join(*outputDir, folder), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating directory %s: %v\n", folder, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generating %d notes in %s...\n", *numNotes, *outputDir)

	// 80% topic notes, 20% daily notes
	topicNotes := *numNotes * 80 / 100
	dailyNotes := *numNotes - topicNotes

	var titles []string
	generated := 0
	for i := 0; i < topicNotes; i++ {
		title := fmt.Sprintf("%s %d", topics[rng.Intn(len(topics))], i)
		if err := writeTopicNote(rng, i, title, titles); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating note %d: %v\n", i, err)
			continue
		}
		titles = append(titles, title)
		generated++
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < dailyNotes; i++ {
		if err := writeDailyNote(rng, start.AddDate(0, 0, i), titles); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating daily note %d: %v\n", i, err)
			continue
		}
		generated++
	}

	fmt.Printf("Generated %d notes successfully.\n", generated)
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func sentence(rng *rand.Rand) string {
	n := 6 + rng.Intn(10)
	parts := make([]string, n)
	for i := range parts {
		parts[i] = pick(rng, words)
	}
	s := strings.Join(parts, " ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

func paragraph(rng *rand.Rand, sentences int) string {
	parts := make([]string, sentences)
	for i := range parts {
		parts[i] = sentence(rng)
	}
	return strings.Join(parts, " ")
}

func taskList(rng *rand.Rand) string {
	var b strings.Builder
	for i := 0; i < 1+rng.Intn(4); i++ {
		box := " "
		if rng.Intn(3) == 0 {
			box = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s the %s", box, pick(rng, actions), pick(rng, words))
		if rng.Intn(2) == 0 {
			due := time.Date(2024, time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC)
			fmt.Fprintf(&b, " @due(%s)", due.Format("2006-01-02"))
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func links(rng *rand.Rand, titles []string) string {
	if len(titles) == 0 {
		return "Nothing yet."
	}
	var out []string
	for i := 0; i < 1+rng.Intn(3); i++ {
		out = append(out, fmt.Sprintf("- [[%s]]", pick(rng, titles)))
	}
	return strings.Join(out, "\n")
}

func writeTopicNote(rng *rand.Rand, index int, title string, titles []string) error {
	created := time.Date(2023, time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC)
	content := fmt.Sprintf(noteTemplate,
		title,
		strings.Join([]string{pick(rng, tags), pick(rng, tags)}, ", "),
		created.Format("2006-01-02"),
		title,
		paragraph(rng, 2),
		paragraph(rng, 4+rng.Intn(8)),
		taskList(rng),
		links(rng, titles),
	)
	name := strings.ToLower(strings.ReplaceAll(title, " ", "-")) + ".md"
	path := filepath.Join(*outputDir, folders[index%len(folders)], name)
	return os.WriteFile(path, []byte(content), 0644)
}

func writeDailyNote(rng *rand.Rand, day time.Time, titles []string) error {
	content := fmt.Sprintf(dailyTemplate,
		day.Format("2006-01-02"),
		paragraph(rng, 3)+"\n\nWorked on "+links(rng, titles),
		taskList(rng),
	)
	path := filepath.Join(*outputDir, "daily", day.Format("2006-01-02")+".md")
	return os.WriteFile(path, []byte(content), 0644)
}
