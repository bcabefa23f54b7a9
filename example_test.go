package factdb_test

import (
	"fmt"
	"log"

	"github.com/hupe1980/factdb"
	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

// Example stores one fact with a qualifier and reads it back.
func Example() {
	db, err := factdb.OpenMemory()
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	entity, _ := db.RegisterSort(schema.StringSort("entity"))
	text, _ := db.RegisterSort(schema.InlineStringSort("text"))

	q1 := value.MustString(entity, "Q1")
	ec := value.NewEdgeContainer(q1).
		Add("bornIn", value.MustString(entity, "Q2"), value.Pair("since", value.MustString(text, "1990")))
	if err := db.UpdateEdges(ec); err != nil {
		log.Fatal(err)
	}

	view, _, err := db.FetchEdgeContainer(q1)
	if err != nil {
		log.Fatal(err)
	}
	got, err := view.Materialize()
	if err != nil {
		log.Fatal(err)
	}
	for _, p := range got.Properties {
		for _, t := range p.Targets {
			fmt.Println(p.Property, t.Target, t.Qualifiers[0].Property, t.Qualifiers[0].Value)
		}
	}
	// Output: bornIn Q2 since 1990
}

// Example_recordInterning shows that content-equal records share one id.
func Example_recordInterning() {
	db, err := factdb.OpenMemory()
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	entity, _ := db.RegisterSort(schema.StringSort("entity"))
	person, _ := db.RegisterSort(schema.RecordSort("person",
		schema.Field("name", "entity"),
		schema.Field("age", "entity"),
	))

	a, _ := value.NewRecordValues(person, value.MustString(entity, "Q1"), value.MustString(entity, "30"))
	b, _ := value.NewRecordValues(person, value.MustString(entity, "Q1"), value.MustString(entity, "30"))

	idA, _ := db.GetOrCreateValueID(a)
	idB, _ := db.GetOrCreateValueID(b)
	fmt.Println(idA == idB)
	// Output: true
}
