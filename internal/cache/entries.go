/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cache

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"imagestroke/internal/domain"
	"imagestroke/internal/imageio"
	"imagestroke/internal/stroke"
)

// Get returns the cached result for key and marks it as recently used.
func (c *Cache) Get(ctx context.Context, key Key) (stroke.Result, bool, error) {
	k := key.String()
	var (
		kind, path             string
		minX, minY, maxX, maxY int
		has                    bool
		contours               int
		blob                   []byte
	)
	err := c.db.QueryRowContext(ctx, `SELECT kind, path, min_x, min_y, max_x, max_y, has_content, contours, png
		FROM strokes WHERE key=?`, k).Scan(&kind, &path, &minX, &minY, &maxX, &maxY, &has, &contours, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return stroke.Result{}, false, nil
	}
	if err != nil {
		return stroke.Result{}, false, fmt.Errorf("query stroke: %w", err)
	}
	res := stroke.Result{
		Kind:     stroke.KindVector,
		Path:     path,
		Bounds:   domain.Bounds{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY, HasContent: has},
		Contours: contours,
	}
	if kind == stroke.KindRaster.String() {
		img, err := imageio.Decode(blob)
		if err != nil {
			// Treat an unreadable row as a miss; it is overwritten on the next Put.
			c.log.Warn("corrupt cache entry", slog.String("key", k), slog.Any("err", err))
			return stroke.Result{}, false, nil
		}
		res.Kind, res.Pixels = stroke.KindRaster, img
	}
	// touch
	_, _ = c.db.ExecContext(ctx, `UPDATE strokes SET last_access=? WHERE key=?`, time.Now().UnixNano(), k)
	return res, true, nil
}

// Put upserts res and enforces the size cap.
func (c *Cache) Put(ctx context.Context, key Key, res stroke.Result) error {
	var blob []byte
	if res.Kind == stroke.KindRaster {
		var buf bytes.Buffer
		if err := imageio.EncodePNG(&buf, res.Pixels); err != nil {
			return fmt.Errorf("encode raster: %w", err)
		}
		blob = buf.Bytes()
	}
	size := len(res.Path) + len(blob)
	b := res.Bounds
	_, err := c.db.ExecContext(ctx, `INSERT INTO strokes(key,algorithm,kind,path,min_x,min_y,max_x,max_y,has_content,contours,png,size,created_at,last_access)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(key) DO UPDATE SET kind=excluded.kind, path=excluded.path,
			min_x=excluded.min_x, min_y=excluded.min_y, max_x=excluded.max_x, max_y=excluded.max_y,
			has_content=excluded.has_content, contours=excluded.contours, png=excluded.png,
			size=excluded.size, last_access=excluded.last_access`,
		key.String(), key.Algorithm, res.Kind.String(), res.Path,
		b.MinX, b.MinY, b.MaxX, b.MaxY, b.HasContent, res.Contours, blob, size,
		time.Now().UTC().Format(time.RFC3339), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("upsert stroke: %w", err)
	}
	if c.maxBytes > 0 {
		return c.EvictToFit(ctx, c.maxBytes)
	}
	return nil
}

// GetOrCreate returns the cached result or runs gen and stores its output.
// Errors from gen are returned unchanged and nothing is stored.
func (c *Cache) GetOrCreate(ctx context.Context, key Key, gen func(context.Context) (stroke.Result, error)) (stroke.Result, bool, error) {
	if res, ok, err := c.Get(ctx, key); err != nil {
		return stroke.Result{}, false, err
	} else if ok {
		return res, true, nil
	}
	res, err := gen(ctx)
	if err != nil {
		return stroke.Result{}, false, err
	}
	if err := c.Put(ctx, key, res); err != nil {
		return stroke.Result{}, false, err
	}
	return res, false, nil
}

// EvictToFit deletes least-recently-used rows until total size <= capBytes.
func (c *Cache) EvictToFit(ctx context.Context, capBytes int64) error {
	var total int64
	if err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM strokes`).Scan(&total); err != nil {
		return fmt.Errorf("sum strokes size: %w", err)
	}
	if total <= capBytes {
		return nil
	}
	// Oldest access first, NULLs first
	rows, err := c.db.QueryContext(ctx, `SELECT key, size FROM strokes ORDER BY
		CASE WHEN last_access IS NULL THEN 0 ELSE 1 END ASC, last_access ASC, rowid ASC`)
	if err != nil {
		return fmt.Errorf("select victims: %w", err)
	}
	victims := make([]any, 0, 32)
	cur := total
	for rows.Next() {
		var k string
		var sz int64
		if err := rows.Scan(&k, &sz); err != nil {
			_ = rows.Close()
			return err
		}
		victims = append(victims, k)
		cur -= sz
		if cur <= capBytes {
			break
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	// Important: close the rows cursor before attempting to write
	if err := rows.Close(); err != nil {
		return err
	}
	if len(victims) == 0 {
		return nil
	}
	q := `DELETE FROM strokes WHERE key IN (` + strings.TrimSuffix(strings.Repeat("?,", len(victims)), ",") + ")"
	if _, err := c.db.ExecContext(ctx, q, victims...); err != nil {
		return fmt.Errorf("evict delete: %w", err)
	}
	c.log.Debug("evicted", slog.Int("entries", len(victims)), slog.Int64("bytes", total-cur))
	return nil
}

// Stats summarises the cache contents.
type Stats struct {
	Path     string
	Entries  int
	Bytes    int64
	MaxBytes int64
}

// Stats reports entry count and tracked size.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	s := Stats{Path: c.path, MaxBytes: c.maxBytes}
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size),0) FROM strokes`).Scan(&s.Entries, &s.Bytes); err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return s, nil
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM strokes`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}
