package models

// TwoFactorSettings is the single global policy row, edited by admins.
type TwoFactorSettings struct {
	BaseModel
	TrustDays       int            `json:"trustDays" gorm:"not null;default:30"`
	AllowedMethods  []FactorMethod `json:"allowedMethods" gorm:"type:text;serializer:json"`
	GracePeriodDays int            `json:"gracePeriodDays" gorm:"not null;default:0"`
	Enforced        bool           `json:"enforced" gorm:"not null;default:false"`
}

func (TwoFactorSettings) TableName() string {
	return "twofactor_settings"
}

func DefaultTwoFactorSettings() TwoFactorSettings {
	return TwoFactorSettings{
		TrustDays:      30,
		AllowedMethods: []FactorMethod{FactorTOTP, FactorEmail, FactorSMS},
	}
}

func (s TwoFactorSettings) Allows(method FactorMethod) bool {
	for _, m := range s.AllowedMethods {
		if m == method {
			return true
		}
	}
	return false
}
