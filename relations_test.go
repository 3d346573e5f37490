package zorm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestAssociations_Defaults(t *testing.T) {
	db := setupLibraryDB(t)

	tests := []struct {
		model string
		alias string
		want  Association
	}{
		{
			model: "Author",
			alias: "books",
			want: Association{
				Name: "books", Type: RelationHasMany, Source: "Author", Target: "Book",
				ForeignKey: "author_id", SourceKey: "id",
			},
		},
		{
			model: "Author",
			alias: "biography",
			want: Association{
				Name: "biography", Type: RelationHasOne, Source: "Author", Target: "Biography",
				ForeignKey: "author_id", SourceKey: "id",
			},
		},
		{
			model: "Book",
			alias: "author",
			want: Association{
				Name: "author", Type: RelationBelongsTo, Source: "Book", Target: "Author",
				ForeignKey: "author_id", TargetKey: "id",
			},
		},
		{
			model: "Book",
			alias: "tags",
			want: Association{
				Name: "tags", Type: RelationBelongsToMany, Source: "Book", Target: "Tag",
				ForeignKey: "book_id", OtherKey: "tag_id", SourceKey: "id", TargetKey: "id",
				Through: JoinRef{Table: "book_tags"},
			},
		},
		{
			model: "Tag",
			alias: "books",
			want: Association{
				Name: "books", Type: RelationBelongsToMany, Source: "Tag", Target: "Book",
				ForeignKey: "tag_id", OtherKey: "book_id", SourceKey: "id", TargetKey: "id",
				Through: JoinRef{Table: "book_tags"}, Inverse: true,
			},
		},
		{
			model: "Biography",
			alias: "author",
			want: Association{
				Name: "author", Type: RelationBelongsTo, Source: "Biography", Target: "Author",
				ForeignKey: "author_id", TargetKey: "id", Inverse: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.model+"."+tt.alias, func(t *testing.T) {
			got, err := mustModel(t, db, tt.model).Association(tt.alias)
			if err != nil {
				t.Fatalf("Association failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestAssociations_DeclaredFirst(t *testing.T) {
	db := setupLibraryDB(t)

	assocs, err := db.Associations("Author")
	if err != nil {
		t.Fatal(err)
	}

	// Book's BelongsTo reflects onto "books", which Author already declares
	if len(assocs) != 2 {
		t.Fatalf("expected 2 associations, got %d: %+v", len(assocs), assocs)
	}
	if assocs[0].Name != "books" || assocs[1].Name != "biography" {
		t.Errorf("expected declaration order, got %s, %s", assocs[0].Name, assocs[1].Name)
	}
	for _, a := range assocs {
		if a.Inverse {
			t.Errorf("%s should not be an inverse", a.Name)
		}
	}
}

func TestAssociations_Errors(t *testing.T) {
	db := New(nil, Dialects.SQLite3)

	if _, err := db.Define("Post", func(ec *EntityConfigurator) {
		ec.BelongsTo("Writer", BelongsToConfig{})
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Associations("Post"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound for an undefined target, got %v", err)
	}

	if _, err := db.Define("Writer", func(ec *EntityConfigurator) {
		ec.HasMany("Post", HasManyConfig{As: "entries"})
		ec.HasMany("Post", HasManyConfig{As: "entries", ForeignKey: "editor_id"})
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Associations("Writer"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for a duplicate alias, got %v", err)
	}

	_, err := db.Define("Tagging", func(ec *EntityConfigurator) {
		ec.BelongsToMany("Post", BelongsToManyConfig{})
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig without a join table, got %v", err)
	}

	if _, err := db.Define("Post", nil); !errors.Is(err, ErrModelExists) {
		t.Errorf("expected ErrModelExists, got %v", err)
	}
}

func TestDefine_PrimaryKey(t *testing.T) {
	db := New(nil, Dialects.SQLite3)

	implicit, err := db.Define("Note", func(ec *EntityConfigurator) {
		ec.Fields("body")
	})
	if err != nil {
		t.Fatal(err)
	}
	fields := implicit.Fields()
	if implicit.PrimaryKey() != "id" || fields[0].Name != "id" || !fields[0].AutoIncrement {
		t.Errorf("expected an implicit auto-increment id, got %+v", fields[0])
	}

	custom, err := db.Define("Country", func(ec *EntityConfigurator) {
		ec.Field("code").IsPrimaryKey().ColumnName("iso_code")
		ec.Fields("name")
	})
	if err != nil {
		t.Fatal(err)
	}
	if custom.PrimaryKey() != "code" || custom.Table() != "countries" {
		t.Errorf("unexpected model %s/%s", custom.PrimaryKey(), custom.Table())
	}
	if f, _ := custom.Field("code"); f.Column != "iso_code" || !f.Unique {
		t.Errorf("unexpected primary key field %+v", f)
	}

	_, err = db.Define("Pair", func(ec *EntityConfigurator) {
		ec.Field("left").IsPrimaryKey()
		ec.Field("right").IsPrimaryKey()
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for a composite key, got %v", err)
	}

	withFK, err := db.Define("City", func(ec *EntityConfigurator) {
		ec.Fields("name")
		ec.BelongsTo("Country", BelongsToConfig{As: "nation"})
	})
	if err != nil {
		t.Fatal(err)
	}
	if !withFK.HasField("nation_id") {
		t.Error("expected the BelongsTo foreign key to be an attribute")
	}
}

func TestInferredTablesAndValidate(t *testing.T) {
	db := setupLibraryDB(t)

	tables, err := db.InferredTables()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"authors", "biographies", "book_tags", "books", "tags"}
	if strings.Join(tables, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, tables)
	}

	if err := db.Validate(context.Background()); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	if _, err := db.Define("Crate", func(ec *EntityConfigurator) {
		ec.Fields("label")
	}); err != nil {
		t.Fatal(err)
	}
	err = db.Validate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "crates") {
		t.Errorf("expected a missing table error, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	db := setupLibraryDB(t)

	var sb strings.Builder
	if err := db.Describe(&sb); err != nil {
		t.Fatal(err)
	}

	out := sb.String()
	for _, want := range []string{"SQL Dialect: sqlite3", "Author (authors)", "book_tags", "BelongsToMany", "biography"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q", want)
		}
	}
}
