package testutil

import (
	"bytes"
	"fmt"
	"testing"
)

// PeopleCSV is a small CSV with integer, text and real columns
const PeopleCSV = "id,name,score\n1,alice,9.5\n2,bob,7\n3,carol,8.25\n"

// PeopleTSV holds the PeopleCSV rows tab separated
const PeopleTSV = "id\tname\tscore\n1\talice\t9.5\n2\tbob\t7\n3\tcarol\t8.25\n"

// GenerateCSV builds a CSV with the given number of data rows
func GenerateCSV(rows int) []byte {
	var buf bytes.Buffer
	buf.WriteString("n,label\n")
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&buf, "%d,row-%d\n", i, i)
	}
	return buf.Bytes()
}

// CreateCSVFixture writes PeopleCSV into a fresh temp dir and returns its path
func CreateCSVFixture(t *testing.T, name string) string {
	t.Helper()
	return WriteFile(t, CreateTempDir(t), name, []byte(PeopleCSV))
}

// Payload returns n bytes of repeating printable data
func Payload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	return data
}
