package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/ai-literacy/internal/curriculum"
)

func loadCatalog(dir string) (*curriculum.Catalog, error) {
	if dir == "" {
		return curriculum.Default()
	}
	return curriculum.LoadDir(dir)
}

func newValidateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a curriculum directory and report every problem found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := loadCatalog(dir)
			if err != nil {
				return err
			}
			if err := catalog.Validate(); err != nil {
				return err
			}
			topics := catalog.ListTopics()
			questions := 0
			for _, t := range topics {
				questions += len(catalog.AllQuestions(t.ID))
			}
			printf(cmd, "ok: %d topics, %d questions\n", len(topics), questions)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "curriculum directory (default: embedded curriculum)")
	return cmd
}

func newTopicsCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List topics in catalog order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := loadCatalog(dir)
			if err != nil {
				return err
			}
			for _, t := range catalog.ListTopics() {
				pre := "-"
				if len(t.Prerequisites) > 0 {
					pre = strings.Join(t.Prerequisites, ",")
				}
				printf(cmd, "%d\t%s\t%d lessons\tafter %s\n", t.Order, t.ID, t.Lessons, pre)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "curriculum directory (default: embedded curriculum)")
	return cmd
}

func newImportQuestionsCmd() *cobra.Command {
	var (
		xlsxPath string
		topicID  string
		outPath  string
	)
	cmd := &cobra.Command{
		Use:   "import-questions",
		Short: "Convert a question bank spreadsheet into a *.questions.yaml file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if topicID == "" {
				return errors.New("--topic is required")
			}
			in, err := os.Open(xlsxPath)
			if err != nil {
				return err
			}
			defer in.Close()

			bank, err := curriculum.ReadQuestionsXLSX(in, topicID)
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = filepath.Join(filepath.Dir(xlsxPath), topicID+".questions.yaml")
			}
			out, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := curriculum.WriteQuestionsYAML(out, bank); err != nil {
				_ = out.Close()
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
			printf(cmd, "wrote %d questions to %s\n", len(bank.Questions), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "spreadsheet to import")
	cmd.Flags().StringVar(&topicID, "topic", "", "topic the questions belong to")
	cmd.Flags().StringVar(&outPath, "out", "", "output file (default: <topic>.questions.yaml next to the spreadsheet)")
	_ = cmd.MarkFlagRequired("xlsx")
	return cmd
}
