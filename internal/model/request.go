package model

// LoginRequest はパスワードログインの入力。
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest は会員登録の入力。
type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8,password_charset,bcrypt_len"`
	Name     string  `json:"name" validate:"required,min=2,max=20,korean_name"`
	Phone    *string `json:"phone" validate:"omitempty,kr_mobile"`
	Birthday *string `json:"birthday" validate:"omitempty,ymd"`
}

// RefreshRequest はトークン再発行の入力。
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// UpdateProfileRequest はプロフィール更新の入力。省略したフィールドは変更しない。
type UpdateProfileRequest struct {
	Name     *string `json:"name" validate:"omitnil,min=2,max=20,korean_name"`
	Phone    *string `json:"phone" validate:"omitnil,kr_mobile"`
	Birthday *string `json:"birthday" validate:"omitnil,ymd"`
	Photo    *string `json:"photo" validate:"omitnil,url,max=2048"`
}
