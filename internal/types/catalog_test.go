package types

import "testing"

func TestCanTransitionSuccessPath(t *testing.T) {
	cases := []struct {
		name string
		from JobStatus
		to   JobStatus
		want bool
	}{
		{name: "created_to_uploading", from: JobStatusCreated, to: JobStatusUploading, want: true},
		{name: "uploading_to_complete", from: JobStatusUploading, to: JobStatusUploadComplete, want: true},
		{name: "upload_complete_to_validating", from: JobStatusUploadComplete, to: JobStatusValidating, want: true},
		{name: "created_to_validating", from: JobStatusCreated, to: JobStatusValidating, want: true},
		{name: "validating_to_complete", from: JobStatusValidating, to: JobStatusValidationComplete, want: true},
		{name: "created_to_upload_complete_skips", from: JobStatusCreated, to: JobStatusUploadComplete, want: false},
		{name: "uploading_to_validating_skips", from: JobStatusUploading, to: JobStatusValidating, want: false},
		{name: "backwards", from: JobStatusValidating, to: JobStatusUploading, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%q, %q)=%v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestFailureStatesAbsorb(t *testing.T) {
	nonTerminal := []JobStatus{JobStatusCreated, JobStatusUploading, JobStatusValidating}
	for _, from := range nonTerminal {
		if !CanTransition(from, JobStatusUploadFailed) {
			t.Fatalf("CanTransition(%q, upload_failed)=false, want true", from)
		}
		if !CanTransition(from, JobStatusValidationFailed) {
			t.Fatalf("CanTransition(%q, validation_failed)=false, want true", from)
		}
	}
	for _, from := range []JobStatus{JobStatusUploadFailed, JobStatusValidationFailed} {
		for _, to := range []JobStatus{JobStatusCreated, JobStatusUploading, JobStatusValidating, JobStatusValidationComplete, JobStatusUploadFailed} {
			if CanTransition(from, to) {
				t.Fatalf("CanTransition(%q, %q)=true, want false: failure states absorb", from, to)
			}
		}
	}
}

func TestTerminalClassification(t *testing.T) {
	if !JobStatusUploadComplete.TerminalSuccess() || !JobStatusValidationComplete.TerminalSuccess() {
		t.Fatalf("upload_complete and validation_complete must be terminal-success")
	}
	if !JobStatusUploadFailed.TerminalFailure() || !JobStatusValidationFailed.TerminalFailure() {
		t.Fatalf("upload_failed and validation_failed must be terminal-failure")
	}
	if JobStatusValidating.Terminal() {
		t.Fatalf("validating must not be terminal")
	}
	if JobStatusWaiting.Terminal() {
		t.Fatalf("derived waiting label must not be terminal")
	}
}

func TestParseFileType(t *testing.T) {
	for _, ft := range FileTypes {
		got, ok := ParseFileType(string(ft))
		if !ok || got != ft {
			t.Fatalf("ParseFileType(%q)=(%q,%v), want (%q,true)", ft, got, ok, ft)
		}
	}
	if _, ok := ParseFileType("payroll"); ok {
		t.Fatalf("ParseFileType(payroll) accepted unknown file type")
	}
}
