package artwork

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/skip2/go-qrcode"

	"ms-adbooking/internal/models"
)

// ProofGenerator renders the tracking QR that gets printed on the mail piece
// once artwork is approved. The payload is AES-encrypted so recipients can't
// forge or read tracking codes.
type ProofGenerator struct {
	secret []byte
}

func NewProofGenerator(secret string) *ProofGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &ProofGenerator{secret: hashed[:]}
}

// TrackingPayload is what the scanner decrypts back out of the QR.
type TrackingPayload struct {
	BookingID  string    `json:"booking_id"`
	Reference  string    `json:"reference"`
	CampaignID string    `json:"campaign_id"`
	RouteID    string    `json:"route_id"`
	MailDate   time.Time `json:"mail_date"`
}

func (g *ProofGenerator) GenerateTrackingProof(booking models.Booking, mailDate time.Time) ([]byte, error) {
	payload := TrackingPayload{
		BookingID:  booking.ID,
		Reference:  booking.Reference,
		CampaignID: booking.CampaignID,
		RouteID:    booking.RouteID,
		MailDate:   mailDate,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
