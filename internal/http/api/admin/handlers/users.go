package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opticore-app/opticore/internal/db"
	"github.com/opticore-app/opticore/internal/models"
	"github.com/opticore-app/opticore/internal/security"
	"gorm.io/gorm"
)

// UsersHandler administers stored user accounts.
type UsersHandler struct {
	db *gorm.DB
}

// NewUsersHandler constructs a UsersHandler.
func NewUsersHandler(conn *gorm.DB) *UsersHandler {
	return &UsersHandler{db: conn}
}

// createUserRequest defines the request body for user creation.
type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Create adds a stored user account. The master role cannot be stored.
func (h *UsersHandler) Create(c *gin.Context) {
	var body createUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	password := strings.TrimSpace(body.Password)
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username or password"})
		return
	}
	role := strings.TrimSpace(body.Role)
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	var exists models.User
	if errCheck := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&exists).Error; errCheck == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
		return
	} else if !errors.Is(errCheck, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := models.User{
		Username: username,
		Password: hash,
		Role:     role,
		Active:   true,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"role":     user.Role,
	})
}

// usersListQuery defines query parameters for listing users.
type usersListQuery struct {
	Page   int    `form:"page,default=1"`
	Limit  int    `form:"limit,default=20"`
	Search string `form:"search"`
}

// List returns users with their grants, paginated and optionally filtered
// by a case-insensitive username search.
func (h *UsersHandler) List(c *gin.Context) {
	var query usersListQuery
	if errBind := c.ShouldBindQuery(&query); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit < 1 || query.Limit > 100 {
		query.Limit = 20
	}

	tx := h.db.WithContext(c.Request.Context()).Model(&models.User{})
	if search := strings.TrimSpace(query.Search); search != "" {
		pattern := db.NormalizeLikePattern(h.db, "%"+search+"%")
		tx = tx.Where(db.CaseInsensitiveLikeExpr(h.db, "username"), pattern)
	}

	var total int64
	if errCount := tx.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var users []models.User
	if errFind := tx.
		Preload("Databases").
		Order("username ASC").
		Offset((query.Page - 1) * query.Limit).
		Limit(query.Limit).
		Find(&users).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	items := make([]gin.H, 0, len(users))
	for _, user := range users {
		items = append(items, userResponse(user))
	}
	c.JSON(http.StatusOK, gin.H{
		"users": items,
		"total": total,
		"page":  query.Page,
		"limit": query.Limit,
	})
}

// Get returns one user with grants and permissions.
func (h *UsersHandler) Get(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}
	response := userResponse(*user)
	permissions := make([]gin.H, 0, len(user.Permissions))
	for _, perm := range user.Permissions {
		permissions = append(permissions, gin.H{"resource": perm.Resource, "action": perm.Action})
	}
	response["permissions"] = permissions
	c.JSON(http.StatusOK, response)
}

// updateUserRequest defines the request body for user updates.
type updateUserRequest struct {
	Password *string `json:"password"`
	Role     *string `json:"role"`
	Active   *bool   `json:"active"`
}

// Update changes a user's password, role or active flag.
func (h *UsersHandler) Update(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}

	var body updateUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if body.Password != nil {
		password := strings.TrimSpace(*body.Password)
		if password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty password"})
			return
		}
		hash, errHash := security.HashPassword(password)
		if errHash != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
			return
		}
		updates["password"] = hash
	}
	if body.Role != nil {
		role := strings.TrimSpace(*body.Role)
		if role != models.RoleUser && role != models.RoleAdmin {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		updates["role"] = role
	}
	if body.Active != nil {
		updates["active"] = *body.Active
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(user).Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update user failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a user together with its grants and permissions.
func (h *UsersHandler) Delete(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errGrants := tx.Where("user_id = ?", user.ID).Delete(&models.DatabaseAccess{}).Error; errGrants != nil {
			return errGrants
		}
		if errPerms := tx.Where("user_id = ?", user.ID).Delete(&models.UserPermission{}).Error; errPerms != nil {
			return errPerms
		}
		return tx.Delete(&models.User{}, user.ID).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete user failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// findUser loads the user addressed by the :id route parameter, including
// grants and permissions. It writes the error response itself on failure.
func (h *UsersHandler) findUser(c *gin.Context) (*models.User, bool) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return nil, false
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).
		Preload("Databases").
		Preload("Permissions").
		First(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	return &user, true
}

// userResponse renders the common user payload.
func userResponse(user models.User) gin.H {
	databases := make([]gin.H, 0, len(user.Databases))
	for _, grant := range user.Databases {
		databases = append(databases, gin.H{"db_name": grant.Database, "rol": grant.Role})
	}
	return gin.H{
		"id":            user.ID,
		"username":      user.Username,
		"role":          user.Role,
		"active":        user.Active,
		"databases":     databases,
		"last_login_at": user.LastLoginAt,
		"created_at":    user.CreatedAt,
	}
}
