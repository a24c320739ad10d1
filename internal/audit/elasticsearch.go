package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"erp-nlquery/internal/common/logger"
)

var ErrAuditIndexFailed = errors.New("AUDIT_INDEX_FAILED")

// ElasticsearchStore mirrors entries into a search index for dashboards.
type ElasticsearchStore struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewElasticsearchStore(client *elasticsearch.Client, index string, log logger.Logger) *ElasticsearchStore {
	if index == "" {
		index = "nlquery-audit"
	}
	return &ElasticsearchStore{client: client, index: index, logger: logger.Component(log, "audit-elasticsearch")}
}

// indexMapping keeps free text searchable and everything else exact.
const indexMapping = `{
  "mappings": {
    "properties": {
      "id":               {"type": "keyword"},
      "user_id":          {"type": "keyword"},
      "roles":            {"type": "keyword"},
      "question":         {"type": "text"},
      "intent":           {"type": "keyword"},
      "parameters":       {"type": "object", "enabled": false},
      "sql_template":     {"type": "text", "index": false},
      "rows_returned":    {"type": "integer"},
      "success":          {"type": "boolean"},
      "error_message":    {"type": "text"},
      "response_time_ms": {"type": "long"},
      "timestamp":        {"type": "date"}
    }
  }
}`

// EnsureIndex creates the audit index with its mapping when it is missing.
func (s *ElasticsearchStore) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: check index: %v", ErrAuditIndexFailed, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: check index: %s", ErrAuditIndexFailed, res.Status())
	}

	res, err = s.client.Indices.Create(s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("%w: create index: %v", ErrAuditIndexFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: create index: %s", ErrAuditIndexFailed, res.Status())
	}
	s.logger.Info("audit index created", map[string]interface{}{"index": s.index})
	return nil
}

func (s *ElasticsearchStore) Insert(ctx context.Context, e *Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: encode entry: %v", ErrAuditIndexFailed, err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(e.ID),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditIndexFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: %s", ErrAuditIndexFailed, res.Status())
	}
	return nil
}
