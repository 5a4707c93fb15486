// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package annotate

import (
	"strings"
	"testing"
)

func TestFormatMessage_NoAnnotationsPassThrough(t *testing.T) {
	o := NewOverlay()
	if got := o.FormatMessage("just a question"); got != "just a question" {
		t.Errorf("got %q", got)
	}
}

func TestFormatMessage_TwoAnnotations(t *testing.T) {
	o := NewOverlay()
	o.Add(2, TextAnnotation{Text: "quick sort", Comment: "use merge sort instead"})
	o.Add(2, TextAnnotation{Text: "O(n)", Comment: "this bound is wrong"})

	got := o.FormatMessage("please revise")

	want := "please revise\n\n" +
		"User made following annotations on the previous message:\n\n" +
		"* \"quick sort\" → use merge sort instead\n\n" +
		"* \"O(n)\" → this bound is wrong"
	if got != want {
		t.Errorf("formatted message:\n%q\nwant:\n%q", got, want)
	}
}

func TestFormatMessage_EmptyInputOmitsLeadingGap(t *testing.T) {
	o := NewOverlay()
	o.Add(0, TextAnnotation{Text: "foo", Comment: "bar"})

	got := o.FormatMessage("")
	if !strings.HasPrefix(got, "User made following annotations") {
		t.Errorf("got %q, want annotation block first", got)
	}
}

func TestFormatMessage_OrderedAcrossMessages(t *testing.T) {
	o := NewOverlay()
	o.Add(5, TextAnnotation{Text: "later", Comment: "b"})
	o.Add(2, TextAnnotation{Text: "earlier", Comment: "a"})

	got := o.FormatMessage("")
	if strings.Index(got, "earlier") > strings.Index(got, "later") {
		t.Error("annotations must appear in message order")
	}
}

func TestAddDeleteForMessage(t *testing.T) {
	o := NewOverlay()
	id := o.Add(1, TextAnnotation{Text: "a", Comment: "c", StartIndex: 0, EndIndex: 1})

	anns := o.ForMessage(1)
	if len(anns) != 1 || anns[0].ID != id {
		t.Fatalf("ForMessage = %+v", anns)
	}

	o.Delete(1, "no-such-id")
	if o.Count() != 1 {
		t.Error("unknown id must be ignored")
	}

	o.Delete(1, id)
	if o.Count() != 0 {
		t.Error("annotation should be gone")
	}
	if len(o.ForMessage(1)) != 0 {
		t.Error("ForMessage should be empty after delete")
	}
}

func TestBuildRequest(t *testing.T) {
	o := NewOverlay()

	// No annotations: plain send, no target.
	body, target, ok := o.BuildRequest("hello")
	if ok || body != "hello" || target != -1 {
		t.Errorf("BuildRequest = %q,%d,%v", body, target, ok)
	}

	o.Add(2, TextAnnotation{Text: "x", Comment: "y"})
	o.Add(4, TextAnnotation{Text: "z", Comment: "w"})

	body, target, ok = o.BuildRequest("fix these")
	if !ok {
		t.Fatal("annotations present, ok should be true")
	}
	if target != 4 {
		t.Errorf("target = %d, want last annotated message 4", target)
	}
	if !strings.Contains(body, "fix these") || !strings.Contains(body, "annotations on the previous message") {
		t.Errorf("body = %q", body)
	}

	// Overlay is consumed.
	if o.Count() != 0 {
		t.Error("BuildRequest must clear the overlay")
	}
}
