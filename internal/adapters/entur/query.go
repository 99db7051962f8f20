package entur

import (
	"fmt"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/printer"
)

// NumberOfDepartures is the fixed page size asked from the journey planner.
const NumberOfDepartures = 100

// Caller input only ever travels in variables; the document itself is constant.
const departureTimesSource = `
query DepartureTimes($id: String!, $startTime: DateTime!, $lines: [ID!]!) {
  stopPlace(id: $id) {
    id
    name
    estimatedCalls(
      arrivalDeparture: departures
      startTime: $startTime
      whiteListed: {lines: $lines}
      numberOfDepartures: 100
      includeCancelledTrips: true
    ) {
      expectedDepartureTime
    }
  }
}`

// Query is a parsed GraphQL operation ready to be sent.
type Query struct {
	Text      string
	Operation string
	Variables []string
}

var departureTimesQuery = mustCompile(departureTimesSource)

// DepartureTimesQuery returns the compiled stopPlace/estimatedCalls query.
func DepartureTimesQuery() Query {
	return departureTimesQuery
}

// Compile parses src, requires exactly one named operation and prints it back
// in canonical form.
func Compile(src string) (Query, error) {
	doc, err := parser.Parse(parser.ParseParams{Source: src})
	if err != nil {
		return Query{}, fmt.Errorf("parse query: %w", err)
	}
	if len(doc.Definitions) != 1 {
		return Query{}, fmt.Errorf("expected one operation, got %d definitions", len(doc.Definitions))
	}
	op, ok := doc.Definitions[0].(*ast.OperationDefinition)
	if !ok || op.Name == nil {
		return Query{}, fmt.Errorf("expected a named operation")
	}

	q := Query{Operation: op.Name.Value}
	for _, vd := range op.VariableDefinitions {
		q.Variables = append(q.Variables, vd.Variable.Name.Value)
	}

	text, ok := printer.Print(doc).(string)
	if !ok {
		return Query{}, fmt.Errorf("print query: unexpected printer output")
	}
	q.Text = text
	return q, nil
}

func mustCompile(src string) Query {
	q, err := Compile(src)
	if err != nil {
		panic("entur query: " + err.Error())
	}
	return q
}
