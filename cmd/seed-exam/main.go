package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/database"
	"github.com/stemsi/exam-portal/internal/logger"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/repository"
	"github.com/stemsi/exam-portal/internal/validator"
)

func main() {
	var (
		file   string
		examID string
	)
	flag.StringVar(&file, "file", "", "Path to the exam definition JSON")
	flag.StringVar(&examID, "id", "", "Exam id (overrides the file; generated when both are empty)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if file == "" {
		fmt.Println("Usage: seed-exam -file exam.json [-id exam-id]")
		os.Exit(2)
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to read exam file")
	}

	var exam model.ExamDefinition
	if err := json.Unmarshal(raw, &exam); err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Exam file is not valid JSON")
	}
	if examID != "" {
		exam.ID = examID
	}
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	if exam.UpdatedAt.IsZero() {
		exam.UpdatedAt = time.Now().UTC()
	}

	validator.Setup()
	if fields := validator.Exam(&exam); fields != nil {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %s\n", k, fields[k])
		}
		log.Fatal().Int("errors", len(fields)).Msg("Exam definition is invalid")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	docs, closeStore, err := database.OpenStore(ctx, cfg, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open document store")
	}
	defer closeStore()

	if err := repository.NewExamRepository(docs).Save(ctx, &exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to save exam")
	}

	fmt.Printf("Seeded exam '%s' (%d questions, %d minutes) with ID: %s\n",
		exam.Title, len(exam.Questions), exam.TimerMinutes, exam.ID)
}
