// internal/domain/user/address_service.go
package user

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrAddressNotFound = errors.New("address not found")

// AddressRequest holds address create/update data
type AddressRequest struct {
	Type         string `json:"type" binding:"omitempty,oneof=shipping billing"`
	FirstName    string `json:"first_name" binding:"required"`
	LastName     string `json:"last_name" binding:"required"`
	Company      string `json:"company"`
	AddressLine1 string `json:"address_line1" binding:"required"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city" binding:"required"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code" binding:"required"`
	Country      string `json:"country" binding:"required,len=2"`
	Phone        string `json:"phone"`
	IsDefault    bool   `json:"is_default"`
}

// GetAddresses lists a user's saved addresses
func (s *Service) GetAddresses(userID uint) ([]Address, error) {
	var addresses []Address
	err := s.db.Where("user_id = ?", userID).
		Order("is_default DESC, created_at DESC").
		Find(&addresses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	return addresses, nil
}

// CreateAddress adds a new address for a user
func (s *Service) CreateAddress(userID uint, req *AddressRequest) (*Address, error) {
	addr := Address{
		UserID:       userID,
		Type:         req.Type,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Company:      req.Company,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		Country:      req.Country,
		Phone:        req.Phone,
		IsDefault:    req.IsDefault,
	}
	if addr.Type == "" {
		addr.Type = "shipping"
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if addr.IsDefault {
			if err := s.clearDefault(tx, userID, addr.Type); err != nil {
				return err
			}
		}
		return tx.Create(&addr).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create address: %w", err)
	}
	return &addr, nil
}

// UpdateAddress updates a user's address
func (s *Service) UpdateAddress(userID, addressID uint, req *AddressRequest) (*Address, error) {
	var addr Address
	if err := s.db.Where("id = ? AND user_id = ?", addressID, userID).First(&addr).Error; err != nil {
		return nil, ErrAddressNotFound
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if req.IsDefault && !addr.IsDefault {
			if err := s.clearDefault(tx, userID, req.Type); err != nil {
				return err
			}
		}
		return tx.Model(&addr).Updates(map[string]interface{}{
			"type":          req.Type,
			"first_name":    req.FirstName,
			"last_name":     req.LastName,
			"company":       req.Company,
			"address_line1": req.AddressLine1,
			"address_line2": req.AddressLine2,
			"city":          req.City,
			"state":         req.State,
			"postal_code":   req.PostalCode,
			"country":       req.Country,
			"phone":         req.Phone,
			"is_default":    req.IsDefault,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update address: %w", err)
	}
	return &addr, nil
}

// DeleteAddress removes a user's address
func (s *Service) DeleteAddress(userID, addressID uint) error {
	result := s.db.Where("id = ? AND user_id = ?", addressID, userID).Delete(&Address{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAddressNotFound
	}
	return nil
}

func (s *Service) clearDefault(tx *gorm.DB, userID uint, addrType string) error {
	return tx.Model(&Address{}).
		Where("user_id = ? AND type = ?", userID, addrType).
		Update("is_default", false).Error
}
