package auth

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/userhub/internal/model"
)

// minPasswordLength はパスワードの最低文字数。
const minPasswordLength = 6

// hashPassword はbcryptでパスワードをハッシュ化する。
// ソルトはハッシュ文字列自体に埋め込まれるため別管理は不要。
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// comparePassword はパスワードとハッシュを照合する。一致しない場合はfalseを返す。
func comparePassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Username string
	Email    string
	Password string
	DOB      string
	Phone    string
	Country  string
}

// validateRegistration は登録入力を検証する。
// 不正な項目があればValidationError（カテゴリvalidation）を返す。
func validateRegistration(input RegisterInput) error {
	if strings.TrimSpace(input.Username) == "" {
		return model.NewValidationError("username", "Username is required.")
	}
	if strings.TrimSpace(input.Email) == "" {
		return model.NewValidationError("email", "Email is required.")
	}
	if !strings.Contains(input.Email, "@") || strings.HasPrefix(input.Email, "@") || strings.HasSuffix(input.Email, "@") {
		return model.NewValidationError("email", "Email is not valid.")
	}
	if len(input.Password) < minPasswordLength {
		return model.NewValidationError("password", "Password must be at least 6 characters.")
	}
	return nil
}
