package twofactor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	BackupCodeCount    = 10
	BackupCodeLength   = 8
	backupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// BackupVault issues single-use recovery codes and keeps only their hashes.
type BackupVault struct {
	repo   BackupCodeRepository
	random io.Reader
	now    func() time.Time
	count  int
}

func NewBackupVault(repo BackupCodeRepository, random io.Reader, now func() time.Time, count int) *BackupVault {
	if count <= 0 {
		count = BackupCodeCount
	}
	return &BackupVault{repo: repo, random: random, now: now, count: count}
}

// NormalizeBackupCode uppercases and strips the separators users tend to type.
func NormalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer(" ", "", "-", "").Replace(code)
}

// LooksLikeBackupCode reports whether code has the shape of a recovery code.
func LooksLikeBackupCode(code string) bool {
	code = NormalizeBackupCode(code)
	if len(code) != BackupCodeLength {
		return false
	}
	return strings.Trim(code, backupCodeAlphabet) == ""
}

// NewBatch draws a fresh set of codes without storing anything; callers
// persist the hashes and hand out the plaintext.
func (v *BackupVault) NewBatch() (codes, hashes []string, err error) {
	codes = make([]string, v.count)
	hashes = make([]string, v.count)
	for i := range codes {
		code, err := randomString(v.random, backupCodeAlphabet, BackupCodeLength)
		if err != nil {
			return nil, nil, fmt.Errorf("generate backup code: %w", err)
		}
		codes[i] = code
		hashes[i] = hashToken(code)
	}
	return codes, hashes, nil
}

// GenerateBatch replaces every previous code of the user and returns the
// plaintext of the new batch. The plaintext is not retrievable afterwards.
func (v *BackupVault) GenerateBatch(ctx context.Context, userID uuid.UUID) ([]string, error) {
	codes, hashes, err := v.NewBatch()
	if err != nil {
		return nil, err
	}
	if err := v.repo.Replace(ctx, userID, hashes); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}
	return codes, nil
}

// Consume marks the matching unused code as used. The conditional update is
// the commit point, so of two concurrent calls with one code only one wins.
func (v *BackupVault) Consume(ctx context.Context, userID uuid.UUID, submitted string) (bool, error) {
	code := NormalizeBackupCode(submitted)
	if code == "" {
		return false, nil
	}
	unused, err := v.repo.ListUnused(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list backup codes: %w", err)
	}
	for _, candidate := range unused {
		if !matchesHash(code, candidate.CodeHash) {
			continue
		}
		marked, err := v.repo.MarkUsed(ctx, candidate.ID, v.now())
		if err != nil {
			return false, fmt.Errorf("mark backup code used: %w", err)
		}
		return marked, nil
	}
	return false, nil
}

func (v *BackupVault) Remaining(ctx context.Context, userID uuid.UUID) (int64, error) {
	return v.repo.CountUnused(ctx, userID)
}
