package ledger

import (
	"fmt"
	"strings"
)

const querySchema = `
CREATE TABLE IF NOT EXISTS router_usage_log (
    id                BIGSERIAL PRIMARY KEY,
    request_id        TEXT        NOT NULL,
    provider_id       TEXT        NOT NULL,
    started_at        TIMESTAMPTZ NOT NULL,
    ended_at          TIMESTAMPTZ NOT NULL,
    outcome           TEXT        NOT NULL,
    prompt_tokens     INTEGER     NOT NULL DEFAULT 0,
    completion_tokens INTEGER     NOT NULL DEFAULT 0,
    cost              DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_router_usage_log_request_id
    ON router_usage_log (request_id);
CREATE INDEX IF NOT EXISTS idx_router_usage_log_provider_started
    ON router_usage_log (provider_id, started_at);
`

const insertColumns = 8

// buildBatchInsertQuery builds a multi-row INSERT for n attempt records.
func buildBatchInsertQuery(n int) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO router_usage_log (request_id, provider_id, started_at, ended_at, outcome, prompt_tokens, completion_tokens, cost) VALUES ")

	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * insertColumns
		sb.WriteString("(")
		for j := 1; j <= insertColumns; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteString(")")
	}

	return sb.String()
}

// batchParams flattens attempt records into the parameter list matching
// buildBatchInsertQuery.
func batchParams(batch []AttemptRecord) []any {
	params := make([]any, 0, len(batch)*insertColumns)
	for _, rec := range batch {
		params = append(params,
			rec.RequestID,
			rec.ProviderID,
			rec.StartedAt,
			rec.EndedAt,
			string(rec.Outcome),
			rec.PromptTokens,
			rec.CompletionTokens,
			rec.Cost,
		)
	}
	return params
}
