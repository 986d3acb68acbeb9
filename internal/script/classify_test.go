// Copyright (c) 2025 Sqlrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package script

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		stmt string
		want Kind
	}{
		{name: "create table", stmt: "CREATE TABLE t(id int)", want: KindDDL},
		{name: "create view mixed case", stmt: "Create Or Replace View v AS SELECT 1", want: KindDDL},
		{name: "alter", stmt: "ALTER TABLE t ADD COLUMN x int", want: KindDDL},
		{name: "drop index", stmt: "drop index idx_t", want: KindDDL},
		{name: "truncate", stmt: "TRUNCATE t", want: KindDDL},
		{name: "do block", stmt: "DO $$ BEGIN NULL; END $$", want: KindDDL},
		{name: "grant", stmt: "GRANT SELECT ON t TO reader", want: KindDDL},
		{name: "insert", stmt: "INSERT INTO t VALUES (1)", want: KindDML},
		{name: "update", stmt: "update t set x = 1", want: KindDML},
		{name: "delete", stmt: "DELETE FROM t WHERE id = 1", want: KindDML},
		{name: "merge", stmt: "MERGE INTO t USING s ON t.id = s.id WHEN MATCHED THEN DO NOTHING", want: KindDML},
		{name: "select", stmt: "SELECT * FROM t", want: KindQuery},
		{name: "cte select", stmt: "WITH x AS (SELECT 1) SELECT * FROM x", want: KindQuery},
		{name: "values", stmt: "VALUES (1), (2)", want: KindQuery},
		{name: "explain", stmt: "EXPLAIN SELECT * FROM t", want: KindQuery},
		{name: "show", stmt: "SHOW search_path", want: KindQuery},
		{name: "parenthesized select", stmt: "(SELECT 1)", want: KindQuery},
		{name: "leading comment", stmt: "-- read\nSELECT 1", want: KindQuery},
		{name: "leading block comment", stmt: "/* hint */ UPDATE t SET x = 1", want: KindDML},
		{name: "unrecognized defaults to DML", stmt: "CALL refresh_balances()", want: KindDML},
		{name: "empty defaults to DML", stmt: "", want: KindDML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.stmt); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.stmt, got, tt.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	if KindDDL.String() != "DDL" || KindDML.String() != "DML" || KindQuery.String() != "QUERY" {
		t.Errorf("unexpected kind names: %s %s %s", KindDDL, KindDML, KindQuery)
	}
}
