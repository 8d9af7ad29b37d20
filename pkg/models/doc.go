// Package models defines the entities of the surrealgrid organizer.
//
// The hierarchy mirrors a spreadsheet database:
//
//   - [User] owns any number of [Base] containers
//   - a [Base] holds [Table] definitions
//   - a [Table] has an ordered list of typed [Field] columns and any number of [Record] rows
//   - a [CellValue] stores the value at one (record, field) intersection
//   - a [View] stores a named filter/sort/visibility preset for a table
//
// # Typed IDs
//
// Every entity is identified by an [ID] parameterized by a marker kind, exposed through
// the aliases [UserID], [BaseID], [TableID], [FieldID], [RecordID], [CellValueID] and
// [ViewID]. They wrap a UUID and know their SurrealDB table at compile time.
//
// In SQL databases they are stored as UUID columns (native uuid on PostgreSQL, text
// elsewhere). In SurrealDB they marshal to record links through CBOR tag 8, so
// foreign keys are links that can be compared against link parameters.
//
// [CellValueID] is name-based: [CellValueIDFor] derives it from the (record, field)
// pair, which lets any backend treat "write the cell at this pair" as a plain upsert
// by primary key.
//
// # Cell Values
//
// Exactly one of TextValue and NumberValue is meaningful, selected by the field's
// [FieldType]. Stores force the other column to nil on every write.
//
// # Views
//
// Views keep their presets as serialized JSON so that the schema does not change as
// filter shapes evolve. Reading them is lenient: malformed documents decode to empty
// lists and invalid entries are skipped (see [ParseFilters]).
package models
