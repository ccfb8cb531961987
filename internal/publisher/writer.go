// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

var _ Sender = &writerSender{}

type writerSender struct {
	writer io.Writer

	lock sync.Mutex
}

// NewWriterSender returns a Sender printing every update on w in a human readable format.
func NewWriterSender(w io.Writer) Sender {
	return &writerSender{
		writer: w,
	}
}

func (s *writerSender) Send(_ context.Context, update Update) error {
	builder := new(strings.Builder)

	if update.Removed {
		builder.WriteString("Remove " + update.Resource + ":\n")
		builder.WriteString("\tAccount: " + update.Ledger + "/" + update.Account + "\n")
		builder.WriteString("\n")
	} else {
		builder.WriteString("Update " + update.Resource + ":\n")
		builder.WriteString("\tAccount: " + update.Ledger + "/" + update.Account + "\n")
		builder.WriteString("\tTrust Level: " + update.TrustLevel.String() + "\n")
		builder.WriteString("\tValue: ")

		encoder := json.NewEncoder(builder)
		encoder.SetIndent("\t", "\t")
		if err := encoder.Encode(update.Value); err != nil {
			return &PublisherError{err: err}
		}
		builder.WriteString("\n")
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if _, err := fmt.Fprint(s.writer, builder.String()); err != nil {
		return &PublisherError{err: err}
	}
	return nil
}

func (s *writerSender) Close() error {
	return nil
}
