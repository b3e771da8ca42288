package action

// Kind selects which field of Answer is populated.
type Kind uint8

const (
	KindNone Kind = iota
	KindString
	KindBytes
	KindFile
)

// Answer is a controller's return value (spec §4.G). Only
// None/String/Bytes exist in spec.md itself; File is a supplemented
// variant (SPEC_FULL §C.5, grounded on original_source's
// src/sys/file.rs static-asset passthrough) for a controller that
// wants to stream a file from the web root without loading it into
// memory as Bytes.
type Answer struct {
	Kind  Kind
	Str   string
	Bytes []byte
	Path  string
}

// None is the empty answer: no body, used for redirects and
// access-denied/not-found outcomes.
func None() Answer { return Answer{} }

// String wraps a text answer.
func String(s string) Answer { return Answer{Kind: KindString, Str: s} }

// BytesAnswer wraps a binary answer.
func BytesAnswer(b []byte) Answer { return Answer{Kind: KindBytes, Bytes: b} }

// File wraps a static-asset passthrough answer: path is resolved by the
// caller against the web root (SPEC_FULL §C.5).
func File(path string) Answer { return Answer{Kind: KindFile, Path: path} }

// Handler is one controller: module/class/action dispatched by Engine.
type Handler func(*Action) Answer
