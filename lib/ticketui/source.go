// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ticketui

import (
	"github.com/bureau-foundation/dispatch/lib/dispatcher"
)

// DispatcherSource adapts a dispatcher into the watch Source: ticket
// projections joined with live window presence.
type DispatcherSource struct {
	Dispatcher *dispatcher.Dispatcher
}

// Rows lists all tickets with their current status and window state.
func (s *DispatcherSource) Rows() ([]Row, error) {
	infos, err := s.Dispatcher.List("")
	if err != nil {
		return nil, err
	}
	windows := s.Dispatcher.Windows()
	rows := make([]Row, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, Row{
			Slug:   info.Slug,
			Status: info.Ticket.Status(),
			Owner:  info.Ticket.Get("owner"),
			Turn:   info.Ticket.TurnCounter(),
			Window: windows[info.Slug],
		})
	}
	return rows, nil
}
