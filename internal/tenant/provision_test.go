package tenant

import "testing"

func TestValidDatabaseName(t *testing.T) {
	valid := []string{"acme", "acme_optics", "a", "tenant2", "x_1_y"}
	for _, name := range valid {
		if !ValidDatabaseName(name) {
			t.Fatalf("expected %q to be valid", name)
		}
	}

	invalid := []string{"", "Acme", "1acme", "acme-optics", "acme.optics", "acme optics", "_acme", "acme;drop"}
	for _, name := range invalid {
		if ValidDatabaseName(name) {
			t.Fatalf("expected %q to be invalid", name)
		}
	}

	// 63 characters is the postgres identifier limit.
	long := "a"
	for len(long) < 63 {
		long += "b"
	}
	if !ValidDatabaseName(long) {
		t.Fatal("expected 63-char name to be valid")
	}
	if ValidDatabaseName(long + "c") {
		t.Fatal("expected 64-char name to be invalid")
	}
}
