package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/pufftown/delivery-backend/internal/geocode"
	"github.com/pufftown/delivery-backend/internal/hash"
	"github.com/pufftown/delivery-backend/internal/jwtauth"
	"github.com/pufftown/delivery-backend/internal/models"
)

const tokenTTL = 24 * time.Hour

// Geocoder resolves a street address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geocode.Location, error)
}

// Mailer sends transactional email.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

type AuthHandler struct {
	DB        *gorm.DB
	Geocoder  Geocoder
	Mailer    Mailer
	JWTSecret []byte

	StoreName   string
	StoreWebURL string
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

// Signup creates a customer in pending approval. The address is geocoded
// immediately; if geocoding fails the account is still created and the
// coordinates stay unset, which blocks checkout until an admin fixes the
// address.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.Address == "" {
		return errorResponse(c, http.StatusBadRequest, errors.New("email, password, first_name and address are required"))
	}
	if len(req.Password) < 8 {
		return errorResponse(c, http.StatusBadRequest, errors.New("password must be at least 8 characters"))
	}

	var existing models.DeliveryCustomer
	err := h.DB.Where("email = ?", req.Email).First(&existing).Error
	if err == nil {
		return errorResponse(c, http.StatusConflict, errors.New("an account with this email already exists"))
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	hashed, err := hash.HashPassword(req.Password)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	cust := models.DeliveryCustomer{
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		Address:        req.Address,
		PasswordHash:   hashed,
		ApprovalStatus: models.ApprovalPending,
	}

	if loc, err := h.Geocoder.Geocode(c.Request().Context(), req.Address); err != nil {
		c.Logger().Warnf("geocode failed for signup %s: %v", req.Email, err)
	} else {
		cust.Latitude = loc.Lat
		cust.Longitude = loc.Lng
		cust.City = loc.City
		cust.State = loc.State
		cust.Zip = loc.Zip
	}

	if err := h.DB.Create(&cust).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"id":              cust.ID,
		"approval_status": cust.ApprovalStatus,
		"message":         "Account created. You can sign in once your account is approved.",
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var cust models.DeliveryCustomer
	if err := h.DB.Where("email = ?", req.Email).First(&cust).Error; err != nil {
		return errorResponse(c, http.StatusUnauthorized, errors.New("invalid email or password"))
	}
	if cust.PasswordHash == "" || !hash.CheckPassword(cust.PasswordHash, req.Password) {
		return errorResponse(c, http.StatusUnauthorized, errors.New("invalid email or password"))
	}
	if cust.ApprovalStatus == models.ApprovalRejected {
		return errorResponse(c, http.StatusForbidden, errors.New("this account has been rejected"))
	}

	token, err := jwtauth.NewToken(h.JWTSecret, cust.ID, "customer", tokenTTL)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	c.SetCookie(jwtauth.NewCookie(token, tokenTTL))

	return c.JSON(http.StatusOK, map[string]any{
		"id":                   cust.ID,
		"email":                cust.Email,
		"first_name":           cust.FirstName,
		"approval_status":      cust.ApprovalStatus,
		"must_change_password": cust.MustChangePassword,
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(jwtauth.NewCookie("", -time.Hour))
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) Profile(c echo.Context) error {
	id, err := jwtauth.CustomerID(c)
	if err != nil {
		return errorResponse(c, http.StatusUnauthorized, err)
	}

	var cust models.DeliveryCustomer
	if err := h.DB.First(&cust, id).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, errors.New("account not found"))
	}
	return c.JSON(http.StatusOK, cust)
}

type profileUpdateRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
}

// UpdateProfile edits contact fields. An address change re-geocodes; a
// failed geocode zeroes the coordinates so checkout fails closed until the
// address resolves.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	id, err := jwtauth.CustomerID(c)
	if err != nil {
		return errorResponse(c, http.StatusUnauthorized, err)
	}

	var req profileUpdateRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var cust models.DeliveryCustomer
	if err := h.DB.First(&cust, id).Error; err != nil {
		return errorResponse(c, http.StatusNotFound, errors.New("account not found"))
	}

	updates := map[string]any{}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Address != nil && *req.Address != cust.Address {
		updates["address"] = *req.Address
		updates["latitude"] = 0.0
		updates["longitude"] = 0.0
		if loc, err := h.Geocoder.Geocode(c.Request().Context(), *req.Address); err != nil {
			c.Logger().Warnf("geocode failed for customer %d: %v", id, err)
		} else {
			updates["latitude"] = loc.Lat
			updates["longitude"] = loc.Lng
			updates["city"] = loc.City
			updates["state"] = loc.State
			updates["zip"] = loc.Zip
		}
	}
	if len(updates) == 0 {
		return c.JSON(http.StatusOK, cust)
	}

	if err := h.DB.Model(&cust).Updates(updates).Error; err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, cust)
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

type forgotRequest struct {
	Email string `json:"email"`
}

// ForgotPassword issues a reset token. The response is identical whether or
// not the email exists.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	resp := map[string]string{"message": "If that email exists, a reset link has been sent."}

	var cust models.DeliveryCustomer
	if err := h.DB.Where("email = ?", req.Email).First(&cust).Error; err != nil {
		return c.JSON(http.StatusOK, resp)
	}

	token, err := newToken()
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	expires := time.Now().UTC().Add(time.Hour)
	err = h.DB.Model(&cust).Updates(map[string]any{
		"reset_token":         token,
		"reset_token_expires": expires,
	}).Error
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", h.StoreWebURL, token)
	html := fmt.Sprintf("<p>Hi %s,</p><p>Reset your %s password here: <a href=%q>%s</a></p><p>This link expires in 1 hour.</p>",
		cust.FirstName, h.StoreName, link, link)
	if err := h.Mailer.Send(c.Request().Context(), cust.Email, h.StoreName+" password reset", html); err != nil {
		c.Logger().Errorf("reset email to %s failed: %v", cust.Email, err)
	}
	return c.JSON(http.StatusOK, resp)
}

type setPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	return h.setPassword(c, "reset_token", "reset_token_expires")
}

// SetupPassword finishes accounts created by an admin, using the setup token
// mailed at approval time.
func (h *AuthHandler) SetupPassword(c echo.Context) error {
	return h.setPassword(c, "setup_token", "setup_token_expires")
}

func (h *AuthHandler) setPassword(c echo.Context, tokenCol, expiresCol string) error {
	var req setPasswordRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}
	if req.Token == "" {
		return errorResponse(c, http.StatusBadRequest, errors.New("missing token"))
	}
	if len(req.Password) < 8 {
		return errorResponse(c, http.StatusBadRequest, errors.New("password must be at least 8 characters"))
	}

	var cust models.DeliveryCustomer
	err := h.DB.Where(tokenCol+" = ? AND "+tokenCol+" <> ''", req.Token).First(&cust).Error
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, errors.New("invalid or expired token"))
	}

	expires := cust.ResetTokenExpires
	if tokenCol == "setup_token" {
		expires = cust.SetupTokenExpires
	}
	if expires == nil || time.Now().UTC().After(*expires) {
		return errorResponse(c, http.StatusBadRequest, errors.New("invalid or expired token"))
	}

	hashed, err := hash.HashPassword(req.Password)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	err = h.DB.Model(&cust).Updates(map[string]any{
		"password_hash":        hashed,
		"must_change_password": false,
		tokenCol:               "",
		expiresCol:             nil,
	}).Error
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Password updated. You can sign in now."})
}

// AdminLogin signs in back-office users against the users table.
func (h *AuthHandler) AdminLogin(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, err)
	}

	var user models.User
	if err := h.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		return errorResponse(c, http.StatusUnauthorized, errors.New("invalid credentials"))
	}
	if user.Role != "admin" || !hash.CheckPassword(user.PasswordHash, req.Password) {
		return errorResponse(c, http.StatusUnauthorized, errors.New("invalid credentials"))
	}

	token, err := jwtauth.NewToken(h.JWTSecret, user.ID, "admin", tokenTTL)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}
	c.SetCookie(jwtauth.NewCookie(token, tokenTTL))
	return c.JSON(http.StatusOK, map[string]any{"id": user.ID, "username": user.Username})
}
