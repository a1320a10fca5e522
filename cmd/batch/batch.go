// Package batch provides commands for importing annotation batches
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clinreview/clinreview/internal/conf"
	"github.com/clinreview/clinreview/internal/datastore"
)

// importFile is the YAML layout accepted by the import command.
type importFile struct {
	BatchRef  string `yaml:"batch_ref"`
	Name      string `yaml:"name"`
	Documents []struct {
		DocumentRef string            `yaml:"document_ref"`
		Attributes  map[string]string `yaml:"attributes"`
	} `yaml:"documents"`
	Annotations []struct {
		AnnotationRef string   `yaml:"annotation_ref"`
		DocumentRef   string   `yaml:"document_ref"`
		Label         string   `yaml:"label"`
		Confidence    *float64 `yaml:"confidence"`
		Deprecated    bool     `yaml:"deprecated"`
	} `yaml:"annotations"`
	Reviewers []struct {
		ReviewerRef string `yaml:"reviewer_ref"`
		Name        string `yaml:"name"`
	} `yaml:"reviewers"`
}

// Command creates and returns the batch command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Manage annotation batches",
	}

	cmd.AddCommand(importCommand(settings))

	return cmd
}

func importCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "import [batch.yaml]",
		Short: "Import a batch of annotations from a YAML file",
		Long: `Import reads a YAML file holding machine-generated annotations, their
source documents and optionally reviewers, and stores them as a completed
batch ready for review task creation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), settings, args[0])
		},
	}
}

func runImport(ctx context.Context, settings *conf.Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file importFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(file.Annotations) == 0 {
		return fmt.Errorf("%s contains no annotations", path)
	}

	// Batches arriving without a pipeline reference get a generated one.
	batchRef := file.BatchRef
	if batchRef == "" {
		batchRef = uuid.NewString()
	}

	ds := datastore.New(settings, nil)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer ds.Close() //nolint:errcheck // nothing meaningful to do on close failure

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	err = ds.Transaction(ctx, func(tx datastore.Interface) error {
		batch := &datastore.Batch{
			BatchRef: batchRef,
			Name:     file.Name,
			Status:   datastore.BatchCompleted,
		}
		if err := tx.CreateBatch(ctx, batch); err != nil {
			return err
		}

		for _, doc := range file.Documents {
			attrs, err := json.Marshal(doc.Attributes)
			if err != nil {
				return fmt.Errorf("failed to encode attributes for %s: %w", doc.DocumentRef, err)
			}
			if err := tx.CreateDocument(ctx, &datastore.Document{
				DocumentRef: doc.DocumentRef,
				Attributes:  string(attrs),
			}); err != nil {
				return err
			}
		}

		annotations := make([]datastore.Annotation, 0, len(file.Annotations))
		for _, a := range file.Annotations {
			annotations = append(annotations, datastore.Annotation{
				BatchID:       batch.ID,
				AnnotationRef: a.AnnotationRef,
				DocumentRef:   a.DocumentRef,
				Label:         a.Label,
				Confidence:    a.Confidence,
				Deprecated:    a.Deprecated,
			})
		}
		if err := tx.CreateAnnotations(ctx, annotations); err != nil {
			return err
		}

		for _, r := range file.Reviewers {
			if err := tx.CreateReviewer(ctx, &datastore.Reviewer{
				ReviewerRef: r.ReviewerRef,
				Name:        r.Name,
			}); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("Imported batch %s with %d annotations\n", batchRef, len(file.Annotations))
	return nil
}
