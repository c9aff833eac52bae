package result

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMysqlRef() MysqlRef {
	return MysqlRef{
		Table:   "src_amazon_product_snapshots",
		PK:      map[string]any{"id": 1},
		Fields:  []string{"asin", "title"},
		Locator: map[string]any{"crawl_batch_no": 1, "site": "us"},
	}
}

func TestNewEvidenceMysqlRequiresRef(t *testing.T) {
	_, err := NewEvidence(SourceMySQL, nil, "", "")
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "ref_mysql", verr.Field)
	assert.Contains(t, err.Error(), "ref_mysql is required when source=mysql")
}

func TestNewEvidenceRejectsMismatchedVariant(t *testing.T) {
	_, err := NewEvidence(SourceMySQL, RagRef{KBSpace: "kb"}, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ref_rag must be absent when source=mysql")

	_, err = NewEvidence(SourceRAG, testMysqlRef(), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ref_mysql must be absent when source=rag")
}

func TestNewEvidenceRejectsUnknownSource(t *testing.T) {
	_, err := NewEvidence(Source("redis"), testMysqlRef(), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source must be mysql or rag")
}

func TestNewEvidenceAcceptsPointerRefs(t *testing.T) {
	ref := testMysqlRef()
	ev, err := NewEvidence(SourceMySQL, &ref, "x", "")
	require.NoError(t, err)
	got, ok := ev.Mysql()
	require.True(t, ok)
	assert.Equal(t, "src_amazon_product_snapshots", got.Table)

	var nilRef *RagRef
	_, err = NewEvidence(SourceRAG, nilRef, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ref_rag is required when source=rag")
}

func TestMysqlRefRequiresAllFields(t *testing.T) {
	cases := map[string]func(r *MysqlRef){
		"ref_mysql.table":   func(r *MysqlRef) { r.Table = "" },
		"ref_mysql.pk":      func(r *MysqlRef) { r.PK = nil },
		"ref_mysql.fields":  func(r *MysqlRef) { r.Fields = []string{} },
		"ref_mysql.locator": func(r *MysqlRef) { r.Locator = map[string]any{} },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			ref := testMysqlRef()
			mutate(&ref)
			_, err := NewMysqlEvidence(ref, "", "")
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, field, verr.Field)
		})
	}
}

func TestRagRefRequiresSpace(t *testing.T) {
	_, err := NewRagEvidence(RagRef{DocumentID: 1, ChunkID: 2, Score: 0.5}, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kb_space is required")
}

func TestEvidenceExactlyOneVariant(t *testing.T) {
	mysqlEv, err := NewMysqlEvidence(testMysqlRef(), "", "")
	require.NoError(t, err)
	ragEv, err := NewRagEvidence(RagRef{KBSpace: "kb", DocumentID: 1, ChunkID: 3, Score: 0.2}, "", "")
	require.NoError(t, err)

	for _, ev := range []Evidence{mysqlEv, ragEv} {
		_, isMysql := ev.Mysql()
		_, isRag := ev.Rag()
		assert.True(t, isMysql != isRag)
		assert.Equal(t, ev.Source(), ev.Ref().Source())
	}
}

func TestEvidenceJSONWireShape(t *testing.T) {
	ev, err := NewMysqlEvidence(testMysqlRef(), "B000TEST title_len=120", "")
	require.NoError(t, err)

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "mysql", raw["source"])
	assert.Nil(t, raw["ref_rag"])
	assert.NotNil(t, raw["ref_mysql"])
	assert.Equal(t, "B000TEST title_len=120", raw["excerpt"])
}

func TestEvidenceUnmarshalEnforcesTag(t *testing.T) {
	var ev Evidence
	err := json.Unmarshal([]byte(`{"source":"mysql","ref_rag":{"kb_space":"kb","document_id":1,"chunk_id":1,"score":1}}`), &ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ref_rag must be absent when source=mysql")

	err = json.Unmarshal([]byte(`{"source":"mysql"}`), &ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ref_mysql is required when source=mysql")

	err = json.Unmarshal([]byte(`{"source":"rag","ref_rag":{"kb_space":"kb","document_id":"d1","chunk_id":7,"score":0.9}}`), &ev)
	require.NoError(t, err)
	ref, ok := ev.Rag()
	require.True(t, ok)
	assert.Equal(t, "kb", ref.KBSpace)
	assert.Equal(t, "d1", ref.DocumentID)
}

func TestZeroEvidenceCannotBeMarshalled(t *testing.T) {
	_, err := json.Marshal(Evidence{})
	require.Error(t, err)
}
