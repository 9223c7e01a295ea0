package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
)

// DefaultIndex is the Elasticsearch index reports are written to when none is configured
const DefaultIndex = "conformer-reports"

// Storage persists reports of failed cases
type Storage interface {
	Store(ctx context.Context, r Report) error
}

// StdoutStorage writes every report as a JSON line
type StdoutStorage struct {
	// W defaults to os.Stdout
	W io.Writer

	mu sync.Mutex
}

// Store implements Storage
func (s *StdoutStorage) Store(_ context.Context, r Report) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshalling report: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.W
	if w == nil {
		w = os.Stdout
	}
	if _, err = w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// ElasticStorage indexes every report as a document
type ElasticStorage struct {
	ES    *elasticsearch.Client
	Index string
}

// Store implements Storage
func (s *ElasticStorage) Store(ctx context.Context, r Report) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshalling report: %w", err)
	}

	index := s.Index
	if index == "" {
		index = DefaultIndex
	}

	res, err := s.ES.Index(index, bytes.NewReader(b), s.ES.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("indexing report: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("indexing report: %s", res.String())
	}
	return nil
}
