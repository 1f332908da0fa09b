package models

import "time"

// Workspace представляет рабочее пространство пользователя - корень дерева
// папок и файлов. JSON-теги соответствуют формату patch-значений,
// отправляемых клиентам.
type Workspace struct {
	ID     string `json:"id"`
	UserID string `json:"userID"`
	Path   string `json:"path"`
	Name   string `json:"name"`
	// RowVersion монотонно неубывающая версия строки,
	// инкрементируется при каждом изменении. Клиентам не отдается.
	RowVersion int64     `json:"-"`
	CreatedAt  time.Time `json:"-"`
}
