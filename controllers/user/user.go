package userController

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"stockpulse/config"
	"stockpulse/database"
	"stockpulse/middleware"
	"stockpulse/models"
)

// ListUsers returns every account. Admin only.
func ListUsers(c *fiber.Ctx) error {
	var users []models.User
	if err := database.Database.Db.Order("id ASC").Find(&users).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch users!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Users fetched!", users)
}

// requireSelf loads the addressed user when the caller is that same user.
// On failure the response is already written and ok is false.
func requireSelf(c *fiber.Ctx) (user *models.User, ok bool) {
	userID, isUint := c.Locals("userId").(uint)
	if !isUint {
		middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
		return nil, false
	}

	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid user id!", nil)
		return nil, false
	}

	if uint(id) != userID {
		middleware.JsonResponse(c, fiber.StatusForbidden, false, "You can only access your own account!", nil)
		return nil, false
	}

	user = new(models.User)
	if err := database.Database.Db.First(user, id).Error; err != nil {
		middleware.JsonResponse(c, fiber.StatusNotFound, false, "User not found!", nil)
		return nil, false
	}
	return user, true
}

// GetUser returns the caller's own account.
func GetUser(c *fiber.Ctx) error {
	user, ok := requireSelf(c)
	if !ok {
		return nil
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "User fetched!", user)
}

// PatchUser updates the caller's name and optionally password. Email is
// immutable.
func PatchUser(c *fiber.Ctx) error {
	user, ok := requireSelf(c)
	if !ok {
		return nil
	}

	reqData := new(struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Password  string `json:"password"`
	})
	if err := c.BodyParser(reqData); err != nil {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
	}

	if reqData.FirstName != "" {
		user.FirstName = reqData.FirstName
	}
	if reqData.LastName != "" {
		user.LastName = reqData.LastName
	}
	if reqData.Password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(reqData.Password), config.AppConfig.SaltRound)
		if err != nil {
			return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to hash password!", nil)
		}
		user.Password = string(hashedPassword)
	}

	if err := database.Database.Db.Save(user).Error; err != nil {
		log.Printf("Error updating user %d: %v", user.ID, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to update user!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "User updated!", user)
}

// DeleteUser removes the caller's own account.
func DeleteUser(c *fiber.Ctx) error {
	user, ok := requireSelf(c)
	if !ok {
		return nil
	}

	// Hard delete; the email becomes available for a fresh signup.
	if err := database.Database.Db.Unscoped().Delete(user).Error; err != nil {
		log.Printf("Error deleting user %d: %v", user.ID, err)
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to delete user!", nil)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
