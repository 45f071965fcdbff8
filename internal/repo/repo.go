// Package repo is the SQLite data access layer for the check and
// notification history. The originals appended every cycle to a flat log
// file; rows are queryable and survive rotation.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"linewatch/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// RecordCheck appends one cycle outcome and returns it with id and
// timestamp filled in.
func (r Repo) RecordCheck(ctx context.Context, c domain.CheckResult) (domain.CheckResult, error) {
	c.TS = r.now().UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO checks(ts,line,transition,record_count,new_count,resolved_count,error) VALUES (?,?,?,?,?,?,?)`,
		c.TS, c.Line, string(c.Transition), c.RecordCount, c.NewCount, c.ResolvedCount, nullable(c.Error))
	if err != nil {
		return c, fmt.Errorf("insert check: %w", err)
	}
	c.ID, _ = res.LastInsertId()
	return c, nil
}

// LatestChecks returns the n most recent checks for a line, newest first.
func (r Repo) LatestChecks(ctx context.Context, line string, n int) ([]domain.CheckResult, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,ts,line,transition,record_count,new_count,resolved_count,COALESCE(error,'') FROM checks WHERE line=? ORDER BY id DESC LIMIT ?`,
		line, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CheckResult
	for rows.Next() {
		var c domain.CheckResult
		var transition string
		if err := rows.Scan(&c.ID, &c.TS, &c.Line, &transition, &c.RecordCount, &c.NewCount, &c.ResolvedCount, &c.Error); err != nil {
			return nil, err
		}
		c.Transition = domain.Transition(transition)
		res = append(res, c)
	}
	return res, rows.Err()
}

// RecordNotification appends one dispatched notification. The id is a
// deterministic hash of line, timestamp and title so a retried insert
// within the same cycle cannot duplicate the row.
func (r Repo) RecordNotification(ctx context.Context, n domain.SentNotification) (domain.SentNotification, error) {
	n.TS = r.now().UTC().Format(time.RFC3339)
	if n.ID == "" {
		n.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(n.Line+"|"+n.TS+"|"+n.Title)).String()
	}
	channels, err := json.Marshal(n.Channels)
	if err != nil {
		return n, err
	}
	failures, err := marshalStringSlice(n.Failures)
	if err != nil {
		return n, err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO notifications(id,ts,line,transition,title,body,channels_json,failures_json) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.TS, n.Line, string(n.Transition), n.Title, n.Body, string(channels), failures)
	if err != nil {
		return n, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// LatestNotifications returns the n most recent dispatched notifications
// for a line, newest first.
func (r Repo) LatestNotifications(ctx context.Context, line string, n int) ([]domain.SentNotification, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,ts,line,transition,title,body,channels_json,COALESCE(failures_json,'') FROM notifications WHERE line=? ORDER BY ts DESC, id LIMIT ?`,
		line, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SentNotification
	for rows.Next() {
		var sn domain.SentNotification
		var transition, channelsJSON, failuresJSON string
		if err := rows.Scan(&sn.ID, &sn.TS, &sn.Line, &transition, &sn.Title, &sn.Body, &channelsJSON, &failuresJSON); err != nil {
			return nil, err
		}
		sn.Transition = domain.Transition(transition)
		if err := json.Unmarshal([]byte(channelsJSON), &sn.Channels); err != nil {
			return nil, fmt.Errorf("decode channels for %s: %w", sn.ID, err)
		}
		if failuresJSON != "" {
			if err := json.Unmarshal([]byte(failuresJSON), &sn.Failures); err != nil {
				return nil, fmt.Errorf("decode failures for %s: %w", sn.ID, err)
			}
		}
		res = append(res, sn)
	}
	return res, rows.Err()
}

// LastCheck returns the most recent check for a line.
func (r Repo) LastCheck(ctx context.Context, line string) (domain.CheckResult, error) {
	checks, err := r.LatestChecks(ctx, line, 1)
	if err != nil {
		return domain.CheckResult{}, err
	}
	if len(checks) == 0 {
		return domain.CheckResult{}, ErrNotFound
	}
	return checks[0], nil
}

func marshalStringSlice(in []string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
