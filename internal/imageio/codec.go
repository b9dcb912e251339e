/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imageio

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"imagestroke/internal/domain"
	applog "imagestroke/internal/log"
)

// Codec decodes image bytes. Implementations must honour ctx cancellation
// while waiting.
type Codec interface {
	Decode(ctx context.Context, b []byte) (domain.Image, error)
}

// ErrCodecClosed is returned after AsyncCodec.Close.
var ErrCodecClosed = errors.New("codec closed")

// Direct decodes on the calling goroutine.
type Direct struct{}

func (Direct) Decode(ctx context.Context, b []byte) (domain.Image, error) {
	if err := ctx.Err(); err != nil {
		return domain.Image{}, err
	}
	return Decode(b)
}

type decodeReply struct {
	img domain.Image
	err error
}

type decodeRequest struct {
	data  []byte
	reply chan decodeReply
}

// AsyncCodec serialises decoding onto one worker goroutine. Every request
// carries its own reply channel, so concurrent callers never see each
// other's results.
type AsyncCodec struct {
	log    *slog.Logger
	reqs   chan decodeRequest
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewAsyncCodec starts the worker. queue bounds the number of requests
// waiting to be picked up.
func NewAsyncCodec(queue int) *AsyncCodec {
	if queue < 0 {
		queue = 0
	}
	c := &AsyncCodec{
		log:    applog.WithComponent("imageio"),
		reqs:   make(chan decodeRequest, queue),
		closed: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *AsyncCodec) loop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.closed:
			return
		case r := <-c.reqs:
			img, err := Decode(r.data)
			if err != nil {
				c.log.Debug("decode failed", slog.Any("err", err))
			}
			// Buffered, never blocks.
			r.reply <- decodeReply{img: img, err: err}
		}
	}
}

// Decode submits b to the worker and waits for the reply.
func (c *AsyncCodec) Decode(ctx context.Context, b []byte) (domain.Image, error) {
	req := decodeRequest{data: b, reply: make(chan decodeReply, 1)}
	select {
	case <-c.closed:
		return domain.Image{}, ErrCodecClosed
	default:
	}
	select {
	case c.reqs <- req:
	case <-c.closed:
		return domain.Image{}, ErrCodecClosed
	case <-ctx.Done():
		return domain.Image{}, ctx.Err()
	}
	select {
	case rep := <-req.reply:
		return rep.img, rep.err
	case <-c.closed:
		return domain.Image{}, ErrCodecClosed
	case <-ctx.Done():
		return domain.Image{}, ctx.Err()
	}
}

// Close stops the worker and waits for it to exit. It is safe to call more
// than once.
func (c *AsyncCodec) Close() {
	c.once.Do(func() { close(c.closed) })
	c.wg.Wait()
}
