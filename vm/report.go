package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Reload report
// ---------------------------------------------------------------------------

var reportEncMode cbor.EncMode

func init() {
	var err error
	reportEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: cbor report mode: %v", err))
	}
}

// ReasonRecord is one cancellation reason, flattened for the wire.
type ReasonRecord struct {
	Kind    string `cbor:"kind" json:"kind"`
	Message string `cbor:"message" json:"message"`
	Class   string `cbor:"class,omitempty" json:"class,omitempty"`
	Library string `cbor:"library,omitempty" json:"library,omitempty"`
}

// ShapeChangeMapping describes one class whose instances were morphed.
type ShapeChangeMapping struct {
	Class               string   `cbor:"class" json:"class"`
	InstanceCount       int      `cbor:"instanceCount" json:"instanceCount"`
	FieldOffsetMappings [][2]int `cbor:"fieldOffsetMappings" json:"fieldOffsetMappings"`
}

// ReloadReport is the result of one reload attempt, successful or not.
type ReloadReport struct {
	ID      string `cbor:"id" json:"id"`
	Success bool   `cbor:"success" json:"success"`

	// Skipped is set on the fast path: no library was modified, so no
	// program was loaded and nothing changed.
	Skipped bool `cbor:"skipped,omitempty" json:"skipped,omitempty"`

	Reasons []ReasonRecord `cbor:"notices,omitempty" json:"notices,omitempty"`

	FinalLibraryCount       int `cbor:"finalLibraryCount" json:"finalLibraryCount"`
	ReceivedLibraryCount    int `cbor:"receivedLibraryCount" json:"receivedLibraryCount"`
	ReceivedLibrariesBytes  int `cbor:"receivedLibrariesBytes" json:"receivedLibrariesBytes"`
	ReceivedClassesCount    int `cbor:"receivedClassesCount" json:"receivedClassesCount"`
	ReceivedProceduresCount int `cbor:"receivedProceduresCount" json:"receivedProceduresCount"`
	SavedLibraryCount       int `cbor:"savedLibraryCount" json:"savedLibraryCount"`
	LoadedLibraryCount      int `cbor:"loadedLibraryCount" json:"loadedLibraryCount"`

	ShapeChangeMappings []ShapeChangeMapping `cbor:"shapeChangeMappings,omitempty" json:"shapeChangeMappings,omitempty"`
}

// Marshal serializes the report as canonical CBOR.
func (r *ReloadReport) Marshal() ([]byte, error) {
	data, err := reportEncMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("vm: encode reload report: %w", err)
	}
	return data, nil
}

// UnmarshalReport parses a serialized reload report.
func UnmarshalReport(data []byte) (*ReloadReport, error) {
	var r ReloadReport
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("vm: decode reload report: %w", err)
	}
	return &r, nil
}

func reasonRecord(r ReasonForCancelling) ReasonRecord {
	rec := ReasonRecord{Kind: r.Kind, Message: r.Message}
	if r.Class != nil {
		rec.Class = r.Class.Name
	}
	if r.Library != nil {
		rec.Library = r.Library.URL()
	}
	return rec
}
