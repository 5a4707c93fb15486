// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package annotate holds the annotation overlay: inline comments the user
// attaches to spans of an assistant message before asking the model to
// rework it.
//
// The overlay is UI-side state only. Annotations never touch the
// transcript until the user sends; then they are rendered into a plain
// text block the model can read, and the annotated message becomes the
// replace target for the reply.
package annotate

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// =============================================================================
// ANNOTATION TYPE
// =============================================================================

// TextAnnotation is one user comment anchored to a span of message text.
// StartIndex and EndIndex are byte offsets into the message body, as
// returned by strings.Index.
type TextAnnotation struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Comment    string `json:"comment"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// NewID generates an annotation identifier.
func NewID() string {
	return "ann_" + uuid.NewString()[:8]
}

// =============================================================================
// OVERLAY
// =============================================================================

// Overlay collects annotations keyed by the transcript index of the
// message they were made on.
type Overlay struct {
	mu        sync.Mutex
	byMessage map[int][]TextAnnotation
}

// NewOverlay creates an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{byMessage: make(map[int][]TextAnnotation)}
}

// Add records an annotation on the message at messageIndex and returns
// its generated ID.
func (o *Overlay) Add(messageIndex int, a TextAnnotation) string {
	if a.ID == "" {
		a.ID = NewID()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.byMessage[messageIndex] = append(o.byMessage[messageIndex], a)
	return a.ID
}

// Delete removes one annotation from a message. Unknown IDs are ignored.
func (o *Overlay) Delete(messageIndex int, id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	anns := o.byMessage[messageIndex]
	for i := range anns {
		if anns[i].ID == id {
			o.byMessage[messageIndex] = append(anns[:i], anns[i+1:]...)
			break
		}
	}
	if len(o.byMessage[messageIndex]) == 0 {
		delete(o.byMessage, messageIndex)
	}
}

// ForMessage returns a copy of the annotations on one message, in the
// order they were added.
func (o *Overlay) ForMessage(messageIndex int) []TextAnnotation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]TextAnnotation(nil), o.byMessage[messageIndex]...)
}

// Count returns the total number of annotations across all messages.
func (o *Overlay) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, anns := range o.byMessage {
		n += len(anns)
	}
	return n
}

// Clear drops every annotation.
func (o *Overlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.byMessage = make(map[int][]TextAnnotation)
}

// all returns every annotation in message order. Caller must hold mu.
func (o *Overlay) all() []TextAnnotation {
	indexes := make([]int, 0, len(o.byMessage))
	for i := range o.byMessage {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var out []TextAnnotation
	for _, i := range indexes {
		out = append(out, o.byMessage[i]...)
	}
	return out
}

// =============================================================================
// REQUEST FORMATTING
// =============================================================================

const annotationHeader = "User made following annotations on the previous message:"

// FormatMessage renders the user's input plus the collected annotations
// into the message body sent to the model. With no annotations the input
// passes through untouched; otherwise the annotation block follows the
// input text (which may be empty).
func (o *Overlay) FormatMessage(input string) string {
	o.mu.Lock()
	anns := o.all()
	o.mu.Unlock()

	if len(anns) == 0 {
		return input
	}

	var b strings.Builder
	b.WriteString(input)
	if strings.TrimSpace(input) != "" {
		b.WriteString("\n\n")
	}
	b.WriteString(annotationHeader)
	b.WriteString("\n\n")
	for _, a := range anns {
		b.WriteString("* \"")
		b.WriteString(a.Text)
		b.WriteString("\" → ")
		b.WriteString(a.Comment)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// BuildRequest renders the outgoing message body and resolves the replace
// target for the reply: the last annotated message. It returns the
// formatted body, the target index, and whether annotations were present.
// The overlay is cleared once the request is built.
func (o *Overlay) BuildRequest(input string) (string, int, bool) {
	o.mu.Lock()
	target := -1
	for i := range o.byMessage {
		if i > target {
			target = i
		}
	}
	o.mu.Unlock()

	if target < 0 {
		return input, -1, false
	}

	formatted := o.FormatMessage(input)
	o.Clear()
	return formatted, target, true
}
