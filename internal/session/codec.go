package session

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Blob format:
// [4 bytes: header length (big-endian)]
// [header JSON: blobHeader]
// [snapshot JSON]
// The whole frame is zstd compressed.

const (
	blobFormat       = "codegraph-session"
	blobVersion      = 1
	headerLengthSize = 4
	maxHeaderSize    = 1 << 20
)

type blobHeader struct {
	Format  string `json:"format"`
	Version int    `json:"version"`
}

// pastePrefix is the conventional display prefix on pasted-content
// descriptions. It is stripped on encode so redisplay after the next
// decode does not stack prefixes.
const pastePrefix = "Paste of "

// EncodeJSON serializes a snapshot to its interchange JSON document.
// Pending descriptions are resolved first; the call blocks until they
// are available.
func EncodeJSON(s *Snapshot) ([]byte, error) {
	dto, err := encodeSnapshot(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(dto)
}

// DecodeJSON reconstructs a snapshot from its JSON document. Every
// fragment is validated; a malformed fragment fails the whole decode
// with a ValidationError.
func DecodeJSON(data []byte) (*Snapshot, error) {
	var dto snapshotDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("parsing snapshot document: %w", err)
	}
	return decodeSnapshot(&dto)
}

// EncodeBinary serializes a snapshot to the compressed blob used for
// fast session resume.
func EncodeBinary(s *Snapshot) ([]byte, error) {
	payload, err := EncodeJSON(s)
	if err != nil {
		return nil, err
	}

	headerJSON, err := json.Marshal(blobHeader{Format: blobFormat, Version: blobVersion})
	if err != nil {
		return nil, fmt.Errorf("marshaling blob header: %w", err)
	}

	var raw bytes.Buffer
	lenBuf := make([]byte, headerLengthSize)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(headerJSON)))
	raw.Write(lenBuf)
	raw.Write(headerJSON)
	raw.Write(payload)

	var compressed bytes.Buffer
	encoder, err := zstd.NewWriter(&compressed)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := encoder.Write(raw.Bytes()); err != nil {
		encoder.Close()
		return nil, fmt.Errorf("compressing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}
	return compressed.Bytes(), nil
}

// DecodeBinary reconstructs a snapshot from a blob written by
// EncodeBinary.
func DecodeBinary(data []byte) (*Snapshot, error) {
	decoder, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	if len(raw) < headerLengthSize {
		return nil, fmt.Errorf("blob too small: %d bytes", len(raw))
	}

	headerLen := binary.BigEndian.Uint32(raw[:headerLengthSize])
	if headerLen > maxHeaderSize {
		return nil, fmt.Errorf("header too large: %d bytes", headerLen)
	}
	if int(headerLengthSize+headerLen) > len(raw) {
		return nil, fmt.Errorf("header length exceeds blob size")
	}

	var header blobHeader
	if err := json.Unmarshal(raw[headerLengthSize:headerLengthSize+headerLen], &header); err != nil {
		return nil, fmt.Errorf("parsing blob header: %w", err)
	}
	if header.Format != blobFormat {
		return nil, fmt.Errorf("unknown blob format %q", header.Format)
	}
	if header.Version != blobVersion {
		return nil, fmt.Errorf("unsupported blob version %d", header.Version)
	}

	return DecodeJSON(raw[headerLengthSize+headerLen:])
}

func encodeSnapshot(s *Snapshot) (*snapshotDTO, error) {
	dto := &snapshotDTO{
		EditableFiles:    []pathDTO{},
		ReadonlyFiles:    []pathDTO{},
		VirtualFragments: []virtualDTO{},
		TaskHistory:      []taskEntryDTO{},
	}

	for _, f := range s.editable {
		d, err := encodePath(f)
		if err != nil {
			return nil, err
		}
		dto.EditableFiles = append(dto.EditableFiles, d)
	}
	for _, f := range s.readonly {
		d, err := encodePath(f)
		if err != nil {
			return nil, err
		}
		dto.ReadonlyFiles = append(dto.ReadonlyFiles, d)
	}
	for _, v := range s.virtual {
		d, err := encodeVirtual(v)
		if err != nil {
			return nil, err
		}
		dto.VirtualFragments = append(dto.VirtualFragments, d)
	}
	for _, e := range s.history {
		d, err := encodeEntry(e)
		if err != nil {
			return nil, err
		}
		dto.TaskHistory = append(dto.TaskHistory, d)
	}
	return dto, nil
}

func decodeSnapshot(dto *snapshotDTO) (*Snapshot, error) {
	s := &Snapshot{}

	for _, d := range dto.EditableFiles {
		f, err := decodePath(d)
		if err != nil {
			return nil, err
		}
		s.editable = append(s.editable, f)
	}
	for _, d := range dto.ReadonlyFiles {
		f, err := decodePath(d)
		if err != nil {
			return nil, err
		}
		s.readonly = append(s.readonly, f)
	}
	for _, d := range dto.VirtualFragments {
		v, err := decodeVirtual(d)
		if err != nil {
			return nil, err
		}
		s.virtual = append(s.virtual, v)
	}
	for i, d := range dto.TaskHistory {
		e, err := decodeEntry(d)
		if err != nil {
			return nil, err
		}
		if i > 0 && e.Sequence <= s.history[i-1].Sequence {
			return nil, &ValidationError{Kind: "taskHistory", Field: "sequence", Reason: "not strictly increasing"}
		}
		s.history = append(s.history, e)
	}
	return s, nil
}

func encodePath(f PathFragment) (pathDTO, error) {
	switch v := f.(type) {
	case ProjectFile:
		return pathDTO{Kind: kindProjectFile, Root: v.Root, RelPath: v.RelPath}, nil
	case ExternalFile:
		return pathDTO{Kind: kindExternalFile, AbsPath: v.AbsPath}, nil
	case ImageFile:
		return pathDTO{Kind: kindImageFile, AbsPath: v.AbsPath, MediaType: v.MediaType}, nil
	case GitRevisionFile:
		return pathDTO{Kind: kindGitRevisionFile, Root: v.Root, RelPath: v.RelPath, Revision: v.Revision, Content: v.Content}, nil
	default:
		return pathDTO{}, fmt.Errorf("unencodable path fragment %T", f)
	}
}

func decodePath(d pathDTO) (PathFragment, error) {
	switch d.Kind {
	case kindProjectFile:
		if d.Root == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "root", Reason: "empty"}
		}
		if d.RelPath == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "relPath", Reason: "empty"}
		}
		return ProjectFile{Root: d.Root, RelPath: d.RelPath}, nil
	case kindExternalFile:
		if d.AbsPath == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "absPath", Reason: "empty"}
		}
		return ExternalFile{AbsPath: d.AbsPath}, nil
	case kindImageFile:
		if d.AbsPath == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "absPath", Reason: "empty"}
		}
		if d.MediaType == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "mediaType", Reason: "empty"}
		}
		return ImageFile{AbsPath: d.AbsPath, MediaType: d.MediaType}, nil
	case kindGitRevisionFile:
		if d.Root == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "root", Reason: "empty"}
		}
		if d.RelPath == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "relPath", Reason: "empty"}
		}
		if d.Revision == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "revision", Reason: "empty"}
		}
		return GitRevisionFile{Root: d.Root, RelPath: d.RelPath, Revision: d.Revision, Content: d.Content}, nil
	default:
		return nil, &ValidationError{Kind: d.Kind, Field: "kind", Reason: "unknown"}
	}
}

func encodeUnit(u CodeUnit) (codeUnitDTO, error) {
	file, err := encodePath(u.File)
	if err != nil {
		return codeUnitDTO{}, err
	}
	return codeUnitDTO{File: file, Kind: string(u.Kind), PackageName: u.PackageName, ShortName: u.ShortName}, nil
}

func decodeUnit(d codeUnitDTO) (CodeUnit, error) {
	switch CodeUnitKind(d.Kind) {
	case UnitClass, UnitFunction, UnitField:
	default:
		return CodeUnit{}, &ValidationError{Kind: "codeUnit", Field: "kind", Reason: "unknown"}
	}
	if d.ShortName == "" {
		return CodeUnit{}, &ValidationError{Kind: "codeUnit", Field: "shortName", Reason: "empty"}
	}
	file, err := decodePath(d.File)
	if err != nil {
		return CodeUnit{}, err
	}
	return CodeUnit{File: file, Kind: CodeUnitKind(d.Kind), PackageName: d.PackageName, ShortName: d.ShortName}, nil
}

func encodeMessages(msgs []Message) []messageDTO {
	out := make([]messageDTO, len(msgs))
	for i, m := range msgs {
		out[i] = messageDTO{Role: m.Role, Content: m.Content}
	}
	return out
}

func decodeMessages(kind string, dtos []messageDTO) ([]Message, error) {
	out := make([]Message, len(dtos))
	for i, d := range dtos {
		if d.Role == "" {
			return nil, &ValidationError{Kind: kind, Field: "messages.role", Reason: "empty"}
		}
		out[i] = Message{Role: d.Role, Content: d.Content}
	}
	return out, nil
}

func encodeUnits(units []CodeUnit) ([]codeUnitDTO, error) {
	out := make([]codeUnitDTO, len(units))
	for i, u := range units {
		d, err := encodeUnit(u)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

func decodeUnits(dtos []codeUnitDTO) ([]CodeUnit, error) {
	out := make([]CodeUnit, len(dtos))
	for i, d := range dtos {
		u, err := decodeUnit(d)
		if err != nil {
			return nil, err
		}
		out[i] = u
	}
	return out, nil
}

// encodeVirtual lowers a fragment to its DTO. The switch is exhaustive
// over the closed variant set; an unhandled type is a programming error
// surfaced at runtime.
func encodeVirtual(f VirtualFragment) (virtualDTO, error) {
	switch v := f.(type) {
	case TaskLog:
		return virtualDTO{Kind: kindTaskLog, SessionName: v.SessionName, Messages: encodeMessages(v.Messages)}, nil
	case FreeText:
		return virtualDTO{Kind: kindFreeText, Text: v.Text, Description: v.Description.Resolve(), SyntaxStyle: v.SyntaxStyle}, nil
	case SearchResult:
		sources, err := encodeUnits(v.Sources)
		if err != nil {
			return virtualDTO{}, err
		}
		return virtualDTO{Kind: kindSearchResult, Query: v.Query, Explanation: v.Explanation, Sources: sources, Messages: encodeMessages(v.Messages)}, nil
	case SkeletonSet:
		return virtualDTO{Kind: kindSkeletonSet, Skeletons: v.Skeletons}, nil
	case UsageSet:
		sources, err := encodeUnits(v.Sources)
		if err != nil {
			return virtualDTO{}, err
		}
		return virtualDTO{Kind: kindUsageSet, TargetIdentifier: v.TargetIdentifier, Sources: sources, RenderedText: v.RenderedText}, nil
	case PastedText:
		return virtualDTO{Kind: kindPastedText, Text: v.Text, Description: stripPastePrefix(v.Description.Resolve())}, nil
	case PastedImage:
		return virtualDTO{Kind: kindPastedImage, ImageBytes: v.ImageBytes, Description: stripPastePrefix(v.Description.Resolve())}, nil
	case Stacktrace:
		sources, err := encodeUnits(v.Sources)
		if err != nil {
			return virtualDTO{}, err
		}
		return virtualDTO{Kind: kindStacktrace, Sources: sources, Original: v.Original, ExceptionSummary: v.ExceptionSummary, Code: v.Code}, nil
	case CallGraph:
		sources, err := encodeUnits(v.Sources)
		if err != nil {
			return virtualDTO{}, err
		}
		return virtualDTO{Kind: kindCallGraph, GraphKind: string(v.Kind), TargetIdentifier: v.TargetIdentifier, Sources: sources, Code: v.Code}, nil
	case CompressedHistory:
		entries := make([]taskEntryDTO, len(v.Entries))
		for i, e := range v.Entries {
			d, err := encodeEntry(e)
			if err != nil {
				return virtualDTO{}, err
			}
			entries[i] = d
		}
		return virtualDTO{Kind: kindCompressedHistory, Entries: entries}, nil
	default:
		return virtualDTO{}, fmt.Errorf("unencodable virtual fragment %T", f)
	}
}

func decodeVirtual(d virtualDTO) (VirtualFragment, error) {
	switch d.Kind {
	case kindTaskLog:
		return decodeTaskLog(d)
	case kindFreeText:
		if d.Text == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "text", Reason: "empty"}
		}
		return FreeText{Text: d.Text, Description: ResolvedDescription(d.Description), SyntaxStyle: d.SyntaxStyle}, nil
	case kindSearchResult:
		if d.Query == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "query", Reason: "empty"}
		}
		sources, err := decodeUnits(d.Sources)
		if err != nil {
			return nil, err
		}
		messages, err := decodeMessages(d.Kind, d.Messages)
		if err != nil {
			return nil, err
		}
		return SearchResult{Query: d.Query, Explanation: d.Explanation, Sources: sources, Messages: messages}, nil
	case kindSkeletonSet:
		if len(d.Skeletons) == 0 {
			return nil, &ValidationError{Kind: d.Kind, Field: "skeletons", Reason: "empty"}
		}
		return SkeletonSet{Skeletons: d.Skeletons}, nil
	case kindUsageSet:
		if d.TargetIdentifier == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "targetIdentifier", Reason: "empty"}
		}
		sources, err := decodeUnits(d.Sources)
		if err != nil {
			return nil, err
		}
		return UsageSet{TargetIdentifier: d.TargetIdentifier, Sources: sources, RenderedText: d.RenderedText}, nil
	case kindPastedText:
		if d.Text == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "text", Reason: "empty"}
		}
		return PastedText{Text: d.Text, Description: ResolvedDescription(d.Description)}, nil
	case kindPastedImage:
		if len(d.ImageBytes) == 0 {
			return nil, &ValidationError{Kind: d.Kind, Field: "imageBytes", Reason: "empty"}
		}
		return PastedImage{ImageBytes: d.ImageBytes, Description: ResolvedDescription(d.Description)}, nil
	case kindStacktrace:
		if d.Original == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "original", Reason: "empty"}
		}
		if d.ExceptionSummary == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "exceptionSummary", Reason: "empty"}
		}
		sources, err := decodeUnits(d.Sources)
		if err != nil {
			return nil, err
		}
		return Stacktrace{Sources: sources, Original: d.Original, ExceptionSummary: d.ExceptionSummary, Code: d.Code}, nil
	case kindCallGraph:
		switch CallGraphKind(d.GraphKind) {
		case Callers, Callees:
		default:
			return nil, &ValidationError{Kind: d.Kind, Field: "graphKind", Reason: "unknown"}
		}
		if d.TargetIdentifier == "" {
			return nil, &ValidationError{Kind: d.Kind, Field: "targetIdentifier", Reason: "empty"}
		}
		sources, err := decodeUnits(d.Sources)
		if err != nil {
			return nil, err
		}
		return CallGraph{Kind: CallGraphKind(d.GraphKind), TargetIdentifier: d.TargetIdentifier, Sources: sources, Code: d.Code}, nil
	case kindCompressedHistory:
		if len(d.Entries) == 0 {
			return nil, &ValidationError{Kind: d.Kind, Field: "entries", Reason: "empty"}
		}
		entries := make([]TaskEntry, len(d.Entries))
		for i, ed := range d.Entries {
			e, err := decodeEntry(ed)
			if err != nil {
				return nil, err
			}
			entries[i] = e
		}
		return CompressedHistory{Entries: entries}, nil
	default:
		return nil, &ValidationError{Kind: d.Kind, Field: "kind", Reason: "unknown"}
	}
}

func decodeTaskLog(d virtualDTO) (TaskLog, error) {
	if d.SessionName == "" {
		return TaskLog{}, &ValidationError{Kind: kindTaskLog, Field: "sessionName", Reason: "empty"}
	}
	if len(d.Messages) == 0 {
		return TaskLog{}, &ValidationError{Kind: kindTaskLog, Field: "messages", Reason: "empty"}
	}
	messages, err := decodeMessages(kindTaskLog, d.Messages)
	if err != nil {
		return TaskLog{}, err
	}
	return TaskLog{SessionName: d.SessionName, Messages: messages}, nil
}

func encodeEntry(e TaskEntry) (taskEntryDTO, error) {
	if e.Log != nil && e.Summary != "" {
		return taskEntryDTO{}, &ValidationError{Kind: "taskEntry", Field: "log/summary", Reason: "both populated"}
	}
	if e.Log == nil && e.Summary == "" {
		return taskEntryDTO{}, &ValidationError{Kind: "taskEntry", Field: "log/summary", Reason: "neither populated"}
	}

	dto := taskEntryDTO{Sequence: e.Sequence, Summary: e.Summary}
	if e.Log != nil {
		log, err := encodeVirtual(*e.Log)
		if err != nil {
			return taskEntryDTO{}, err
		}
		dto.Log = &log
	}
	return dto, nil
}

func decodeEntry(d taskEntryDTO) (TaskEntry, error) {
	var log *TaskLog
	if d.Log != nil {
		if d.Log.Kind != kindTaskLog {
			return TaskEntry{}, &ValidationError{Kind: "taskEntry", Field: "log.kind", Reason: "not a task log"}
		}
		decoded, err := decodeTaskLog(*d.Log)
		if err != nil {
			return TaskEntry{}, err
		}
		log = &decoded
	}
	return NewEntry(d.Sequence, log, d.Summary)
}

func stripPastePrefix(desc string) string {
	return strings.TrimPrefix(desc, pastePrefix)
}
