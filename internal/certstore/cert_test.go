package certstore

import (
	"testing"

	"github.com/taxygo/taxy/internal/model"
	"github.com/taxygo/taxy/internal/subjectname"
)

func TestNewSelfSigned(t *testing.T) {
	ca, err := NewCA()
	if err != nil {
		t.Fatal(err)
	}
	if !ca.IsCA {
		t.Fatal("expected CA cert")
	}

	localhost, err := subjectname.Parse("localhost")
	if err != nil {
		t.Fatal(err)
	}
	cert, err := NewSelfSigned([]subjectname.Name{localhost}, ca)
	if err != nil {
		t.Fatal(err)
	}
	if cert.Kind != model.CertKindServer {
		t.Fatalf("expected server cert, got %v", cert.Kind)
	}
	if !cert.HasSubjectName(localhost) {
		t.Fatal("expected san to cover localhost")
	}
	if !cert.IsValid() {
		t.Fatal("expected freshly minted cert to be valid")
	}
	if cert.RootCert == nil {
		t.Fatal("expected chained root subject")
	}
}

func TestKeyringAddDeleteDuplicate(t *testing.T) {
	ca, err := NewCA()
	if err != nil {
		t.Fatal(err)
	}
	k := NewKeyring()
	if err := k.Add(ca); err != nil {
		t.Fatal(err)
	}
	if err := k.Add(ca); err == nil {
		t.Fatal("expected duplicate id error")
	}
	if err := k.Delete(ca.ID.String()); err != nil {
		t.Fatal(err)
	}
	if err := k.Delete(ca.ID.String()); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestFindServerCert(t *testing.T) {
	ca, err := NewCA()
	if err != nil {
		t.Fatal(err)
	}
	name, _ := subjectname.Parse("example.com")
	leaf, err := NewSelfSigned([]subjectname.Name{name}, ca)
	if err != nil {
		t.Fatal(err)
	}
	k := NewKeyring(leaf)
	found, ok := k.FindServerCert(name)
	if !ok {
		t.Fatal("expected to find cert")
	}
	if found.ID != leaf.ID {
		t.Fatal("found wrong cert")
	}

	other, _ := subjectname.Parse("other.example.com")
	if _, ok := k.FindServerCert(other); ok {
		t.Fatal("expected no match for unrelated name")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	meta := model.CertMetadata{AcmeID: "abc123", IsTrusted: true}
	comment := EncodeMetadataComment(meta)
	ca, err := NewCA()
	if err != nil {
		t.Fatal(err)
	}
	pemChain := append([]byte(comment), ca.PemChain...)
	cert, err := NewCert(model.CertKindRoot, pemChain, ca.PemKey)
	if err != nil {
		t.Fatal(err)
	}
	if cert.Metadata == nil || cert.Metadata.AcmeID != "abc123" {
		t.Fatalf("expected metadata to round trip, got %+v", cert.Metadata)
	}
	if !cert.Metadata.IsTrusted {
		t.Fatal("expected is_trusted to round trip")
	}
}
