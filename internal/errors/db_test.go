package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func asAppError(t *testing.T, err error) *AppError {
	t.Helper()
	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	}
	return appErr
}

func TestMapDBError_Nil(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	if got := asAppError(t, MapDBError(context.DeadlineExceeded)).Code; got != ErrCodeTimeout {
		t.Errorf("deadline exceeded mapped to %v, want %v", got, ErrCodeTimeout)
	}
	if got := asAppError(t, MapDBError(context.Canceled)).Code; got != ErrCodeCanceled {
		t.Errorf("canceled mapped to %v, want %v", got, ErrCodeCanceled)
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	if got := asAppError(t, MapDBError(pgx.ErrNoRows)).Code; got != ErrCodeNotFound {
		t.Errorf("pgx.ErrNoRows mapped to %v, want %v", got, ErrCodeNotFound)
	}
}

func TestMapDBError_UnrecognizedPassesThrough(t *testing.T) {
	plain := errors.New("connection refused")
	if got := MapDBError(plain); got != plain {
		t.Errorf("MapDBError(plain) = %v, want the original error", got)
	}
}

func TestMapDBError_UniqueViolation(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
	}{
		{
			name: "column name from driver metadata",
			pgErr: &pgconn.PgError{
				Code:       pgerrcode.UniqueViolation,
				ColumnName: "business_id",
			},
			wantField: "business_id",
		},
		{
			name: "composite key parsed from detail",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "channel_credentials_business_channel_key",
				Detail:         `Key (business_id, channel)=(biz-1, sms) already exists.`,
			},
			wantField: "business_id, channel",
		},
		{
			name:      "no metadata still conflicts",
			pgErr:     &pgconn.PgError{Code: pgerrcode.UniqueViolation},
			wantField: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			appErr := asAppError(t, MapDBError(tc.pgErr))
			if appErr.Code != ErrCodeConflict {
				t.Errorf("Code = %v, want %v", appErr.Code, ErrCodeConflict)
			}
			if appErr.Field != tc.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tc.wantField)
			}
		})
	}
}

func TestMapDBError_ForeignKeyViolation(t *testing.T) {
	tests := []struct {
		name        string
		pgErr       *pgconn.PgError
		wantMessage string
	}{
		{
			name: "missing parent on insert",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.ForeignKeyViolation,
				Detail: `Key (content_id)=(...) is not present in table "content_items".`,
			},
			wantMessage: "Cannot complete operation because the referenced content item does not exist.",
		},
		{
			name: "parent still referenced on delete",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.ForeignKeyViolation,
				Detail: `Key (id)=(...) is still referenced from table "research_documents".`,
			},
			wantMessage: "Cannot delete because this item is in use by research document records.",
		},
		{
			name: "table metadata fallback",
			pgErr: &pgconn.PgError{
				Code:      pgerrcode.ForeignKeyViolation,
				TableName: "research_timeline",
			},
			wantMessage: "Cannot complete operation because this item is in use by research timeline event records.",
		},
		{
			name:        "no metadata at all",
			pgErr:       &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation},
			wantMessage: "Cannot complete operation because this item is in use.",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			appErr := asAppError(t, MapDBError(tc.pgErr))
			if appErr.Code != ErrCodeForeignKey {
				t.Errorf("Code = %v, want %v", appErr.Code, ErrCodeForeignKey)
			}
			if appErr.Message != tc.wantMessage {
				t.Errorf("Message = %q, want %q", appErr.Message, tc.wantMessage)
			}
		})
	}
}

func TestMapDBError_ConstraintViolations(t *testing.T) {
	notNull := asAppError(t, MapDBError(&pgconn.PgError{
		Code:       pgerrcode.NotNullViolation,
		ColumnName: "topic",
	}))
	if notNull.Code != ErrCodeValidation || notNull.Field != "topic" {
		t.Errorf("not null violation = %+v, want validation error on topic", notNull)
	}
	if notNull.Message != "This field is required." {
		t.Errorf("Message = %q", notNull.Message)
	}

	check := asAppError(t, MapDBError(&pgconn.PgError{
		Code:       pgerrcode.CheckViolation,
		ColumnName: "status",
	}))
	if check.Code != ErrCodeValidation || check.Message != "This field has an invalid value." {
		t.Errorf("check violation = %+v", check)
	}
}

func TestMapDBError_UnknownPgErrorIsInternal(t *testing.T) {
	appErr := asAppError(t, MapDBError(&pgconn.PgError{Code: pgerrcode.SerializationFailure}))
	if appErr.Code != ErrCodeInternal {
		t.Errorf("Code = %v, want %v", appErr.Code, ErrCodeInternal)
	}
}

func TestTableDisplayName(t *testing.T) {
	tests := map[string]string{
		"channel_credentials": "channel credential",
		" Distribution_Jobs ": "distribution job",
		"some_other_table":    "some other table",
	}
	for in, want := range tests {
		if got := tableDisplayName(in); got != want {
			t.Errorf("tableDisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMapDBError_WrappedErrorsUnwrap(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "url"}
	mapped := MapDBError(pgErr)

	var unwrapped *pgconn.PgError
	if !errors.As(mapped, &unwrapped) {
		t.Fatal("mapped error does not unwrap to *pgconn.PgError")
	}
	if unwrapped.ColumnName != "url" {
		t.Errorf("ColumnName = %q, want %q", unwrapped.ColumnName, "url")
	}
}
