package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestCreateUserHandlerRejectsBadInput(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	h := CreateUserHandler(log, nil)

	req := httptest.NewRequest("GET", "/user/create", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	req = httptest.NewRequest("POST", "/user/create", bytes.NewBufferString("{not json"))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest("POST", "/user/create", bytes.NewBufferString(`{"email":"a@b.c"}`))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginHandlerRejectsBadInput(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	h := LoginHandler(log, nil)

	req := httptest.NewRequest("GET", "/user/login", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	req = httptest.NewRequest("POST", "/user/login", bytes.NewBufferString("{not json"))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
