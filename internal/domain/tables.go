package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	&SysOpr{},
	&SysOprLog{},
	&MktScheduler{},
	// Accounts
	&User{},
	&UserSession{},
	&PasswordReset{},
	// Catalog
	&Product{},
	&ProductItem{},
	// Commerce
	&Coupon{},
	&Order{},
	&Payment{},
	&PaymentIntent{},
	&WalletTransaction{},
	// Support
	&Ticket{},
	&TicketMessage{},
	&Attachment{},
}
