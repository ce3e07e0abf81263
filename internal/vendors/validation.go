package vendors

import "fmt"

func (s *Service) validate(v Vendor) error {
	if v.Code == "" {
		return fmt.Errorf("%w: vendor code is required", ErrValidation)
	}
	if v.Name == "" {
		return fmt.Errorf("%w: vendor name is required", ErrValidation)
	}
	return nil
}
