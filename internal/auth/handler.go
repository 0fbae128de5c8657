package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"github.com/bonchi-health/bonchi_api/internal/identity"
	"github.com/bonchi-health/bonchi_api/internal/sms"
	"github.com/bonchi-health/bonchi_api/internal/validation"
)

// UserIDLocal is the fiber.Ctx locals key holding the authenticated user id.
const UserIDLocal = "user_id"

// Envelope is the JSON shape of every auth response.
type Envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    *Payload `json:"data,omitempty"`
	Code    string   `json:"code,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Payload carries the user, token or OTP session id of a successful response.
type Payload struct {
	User      *UserView `json:"user,omitempty"`
	Token     string    `json:"token,omitempty"`
	SessionID int64     `json:"sessionId,omitempty"`
}

// UserView is the public representation of a member.
type UserView struct {
	ID         int64      `json:"id"`
	Email      *string    `json:"email,omitempty"`
	Phone      *string    `json:"phone,omitempty"`
	Name       string     `json:"name"`
	FirstName  string     `json:"firstName,omitempty"`
	MiddleName *string    `json:"middleName,omitempty"`
	Address    *string    `json:"address,omitempty"`
	District   *string    `json:"district,omitempty"`
	State      *string    `json:"state,omitempty"`
	GSTNumber  *string    `json:"gstNumber,omitempty"`
	Gender     *string    `json:"gender,omitempty"`
	Age        *int       `json:"age,omitempty"`
	AuthType   string     `json:"authType"`
	UserType   string     `json:"userType,omitempty"`
	IsVerified bool       `json:"isVerified"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
}

// NewUserView converts a user for output. Password hashes never leave the service.
func NewUserView(u identity.User) *UserView {
	view := &UserView{
		ID:         u.ID,
		Email:      u.Email,
		Phone:      u.Phone,
		Name:       u.Name,
		FirstName:  u.FirstName,
		MiddleName: u.MiddleName,
		Address:    u.Address,
		District:   u.District,
		State:      u.State,
		GSTNumber:  u.GSTNumber,
		Age:        u.Age,
		AuthType:   string(u.AuthType),
		UserType:   string(u.UserType),
		IsVerified: u.IsVerified,
	}
	if u.Gender != nil {
		view.Gender = lo.ToPtr(string(*u.Gender))
	}
	if !u.CreatedAt.IsZero() {
		view.CreatedAt = lo.ToPtr(u.CreatedAt)
	}
	return view
}

// Handler exposes the auth endpoints.
type Handler struct {
	svc       *Service
	validator *validation.Validator
}

// NewHandler builds the HTTP handler over svc.
func NewHandler(svc *Service, v *validation.Validator) *Handler {
	return &Handler{svc: svc, validator: v}
}

type registerRequest struct {
	Email      string  `json:"email" validate:"required,email"`
	Password   string  `json:"password" validate:"required,max=72"`
	FirstName  string  `json:"firstName" validate:"required"`
	MiddleName *string `json:"middleName"`
	Phone      *string `json:"phone" validate:"omitempty,inphone"`
	Address    *string `json:"address"`
	District   string  `json:"district" validate:"required"`
	State      string  `json:"state" validate:"required"`
	GSTNumber  *string `json:"gstNumber"`
	Gender     string  `json:"gender" validate:"required,oneof=MALE FEMALE OTHER PREFER_NOT_TO_SAY"`
	Age        *int    `json:"age" validate:"omitempty,gte=0,lte=150"`
}

// Register creates an email/password account.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidInput.WithMessage("Invalid request body")
	}
	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.District == "" || req.State == "" || req.Gender == "" {
		return ErrInvalidInput.WithMessage("Email, password, first name, district, state, and gender are required")
	}
	req.Phone = normalizeOptionalPhone(req.Phone)
	if err := h.validate(req); err != nil {
		return err
	}

	res, err := h.svc.Register(c.UserContext(), RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Profile: Profile{
			FirstName:  req.FirstName,
			MiddleName: req.MiddleName,
			Address:    req.Address,
			District:   req.District,
			State:      req.State,
			GSTNumber:  req.GSTNumber,
			Gender:     identity.Gender(req.Gender),
			Age:        req.Age,
		},
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(Envelope{
		Success: true,
		Message: "User registered successfully",
		Data:    &Payload{User: NewUserView(res.User), Token: res.Token},
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login signs in with email and password.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidInput.WithMessage("Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return ErrInvalidInput.WithMessage("Email and password are required")
	}
	res, err := h.svc.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(Envelope{
		Success: true,
		Message: "Login successful",
		Data:    &Payload{User: NewUserView(res.User), Token: res.Token},
	})
}

type sendOTPRequest struct {
	Phone string `json:"phone"`
}

// SendOTP starts a phone verification.
func (h *Handler) SendOTP(c *fiber.Ctx) error {
	var req sendOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidInput.WithMessage("Invalid request body")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return ErrInvalidInput.WithMessage("Phone number is required")
	}
	id, err := h.svc.SendOTP(c.UserContext(), sms.NormalizePhone(req.Phone))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(Envelope{
		Success: true,
		Message: "OTP sent successfully",
		Data:    &Payload{SessionID: id},
	})
}

type verifyOTPRequest struct {
	Phone      string  `json:"phone"`
	OTP        string  `json:"otp"`
	SessionID  int64   `json:"sessionId"`
	FirstName  string  `json:"firstName"`
	MiddleName *string `json:"middleName"`
	Email      *string `json:"email" validate:"omitempty,email"`
	Address    *string `json:"address"`
	District   string  `json:"district"`
	State      string  `json:"state"`
	GSTNumber  *string `json:"gstNumber"`
	Gender     string  `json:"gender" validate:"omitempty,oneof=MALE FEMALE OTHER PREFER_NOT_TO_SAY"`
	Age        *int    `json:"age" validate:"omitempty,gte=0,lte=150"`
}

// VerifyOTP checks a code and signs the member in.
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidInput.WithMessage("Invalid request body")
	}
	if strings.TrimSpace(req.Phone) == "" || req.OTP == "" || req.SessionID == 0 {
		return ErrInvalidInput.WithMessage("Phone, OTP, and session ID are required")
	}
	if err := h.validate(req); err != nil {
		return err
	}

	in := VerifyInput{
		Phone:     sms.NormalizePhone(req.Phone),
		Code:      strings.TrimSpace(req.OTP),
		SessionID: req.SessionID,
		Email:     req.Email,
	}
	profile := Profile{
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		Address:    req.Address,
		District:   req.District,
		State:      req.State,
		GSTNumber:  req.GSTNumber,
		Gender:     identity.Gender(req.Gender),
		Age:        req.Age,
	}
	if profile.Complete() {
		in.Profile = &profile
	}

	res, err := h.svc.VerifyOTP(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(Envelope{
		Success: true,
		Message: "OTP verified successfully",
		Data:    &Payload{User: NewUserView(res.User), Token: res.Token},
	})
}

// Me returns the authenticated member.
func (h *Handler) Me(c *fiber.Ctx) error {
	id, ok := c.Locals(UserIDLocal).(int64)
	if !ok {
		return ErrInvalidToken
	}
	user, err := h.svc.CurrentUser(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(Envelope{
		Success: true,
		Message: "User retrieved successfully",
		Data:    &Payload{User: NewUserView(user)},
	})
}

// Logout acknowledges a client-side sign out. Tokens are stateless and stay
// valid until they expire.
func (h *Handler) Logout(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(Envelope{Success: true, Message: "Logged out successfully"})
}

func (h *Handler) validate(req any) error {
	err := h.validator.Validate(req)
	if err == nil {
		return nil
	}
	var fields validation.Errors
	if errors.As(err, &fields) {
		return ErrInvalidInput.WithMessage("Validation failed").WithDetail(fields.Error())
	}
	return err
}

func normalizeOptionalPhone(phone *string) *string {
	if phone == nil {
		return nil
	}
	return lo.EmptyableToPtr(sms.NormalizePhone(*phone))
}
