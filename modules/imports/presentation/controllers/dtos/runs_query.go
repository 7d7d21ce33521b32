package dtos

import (
	"strings"
	"time"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
)

// RunsQuery is the query string of GET /api/imports/runs.
type RunsQuery struct {
	From      time.Time `form:"from"`
	To        time.Time `form:"to"`
	TableName string    `form:"tableName" validate:"omitempty,max=128"`
	Status    string    `form:"status" validate:"omitempty,oneof=SUCCESS FAILED success failed"`
	Limit     int       `form:"limit" validate:"gte=0"`
}

func (q *RunsQuery) ToFindParams() *importrun.FindParams {
	p := &importrun.FindParams{
		TableName: strings.TrimSpace(q.TableName),
		Status:    importrun.Status(strings.ToUpper(q.Status)),
		Limit:     q.Limit,
	}
	if !q.From.IsZero() {
		from := q.From
		p.From = &from
	}
	if !q.To.IsZero() {
		to := q.To
		p.To = &to
	}
	return p
}
