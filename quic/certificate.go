package quic

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"time"
)

const certCommonName = "Solana node"

// newSelfSignedCertificate builds the throwaway ed25519 identity presented
// during the QUIC handshake. Ingest ports check that a certificate is
// present, not who signed it.
func newSelfSignedCertificate() (certPEM, keyPEM []byte, err error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, nil, err
	}

	tmpl := x509.Certificate{
		Version:            3,
		SerialNumber:       serialNumber,
		Subject:            pkix.Name{CommonName: certCommonName},
		Issuer:             pkix.Name{CommonName: certCommonName},
		SignatureAlgorithm: x509.PureEd25519,
		NotBefore:          time.Date(1975, time.January, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:           time.Date(4096, time.January, 1, 0, 0, 0, 0, time.UTC),
		ExtraExtensions:    []pkix.Extension{subjectAltName()},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, publicKey, privateKey)
	if err != nil {
		return nil, nil, err
	}
	keyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, nil, err
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes})
	return certPEM, keyPEM, nil
}

// subjectAltName carries a single IPAddress entry of 0.0.0.0, the form
// ingest ports accept from sender certificates.
func subjectAltName() pkix.Extension {
	return pkix.Extension{
		Id:    asn1.ObjectIdentifier{2, 5, 29, 17},
		Value: []byte{48, 6, 135, 4, 0, 0, 0, 0},
	}
}
