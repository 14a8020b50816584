package utils

// session cookie
const SESSION_COOKIE_NAME = "account_session"

// GORM surfaces MySQL duplicate-key violations as error strings with this prefix.
const GORM_ERR_CODE_DUPLICATE_KEY = "Error 1062"

// user-facing messages
const GENERIC_LOGIN_ERROR = "Invalid email or password."
const EMAIL_NOT_VERIFIED_ERROR = "Please verify your email address before logging in."
const PASSWORD_LOGIN_UNAVAILABLE_ERROR = "This account uses a linked sign-in provider. Please log in with your provider."
const GENERIC_SIGNUP_ERROR = "We had some trouble signing you up. Please try again!"
const GENERIC_CODE_ERROR = "That code is invalid or has expired. Please try again."
const GENERIC_PASSWORD_CHANGE_ERROR = "We had some trouble changing your password. Please try again!"
const GENERIC_SERVER_ERROR = "Something went wrong on our end. Please try again!"
const GENERIC_RATE_LIMIT_ERROR = "Too many attempts. Please slow down and try again!"
const MISSING_REQUEST_DATA = "Your request is missing some required data."
const UNAUTHORIZED_ERROR = "You need to be logged in to do that."

// machine-readable error codes for the OAuth callback redirect
const OAUTH_ERR_GENERIC = "oauth_error"
const OAUTH_ERR_MISSING_CODE = "missing_code"
const OAUTH_ERR_TOKEN_EXCHANGE = "token_exchange_failed"
const OAUTH_ERR_NO_ACCESS_TOKEN = "no_access_token"
const OAUTH_ERR_USER_INFO = "user_info_failed"
const OAUTH_ERR_NO_EMAIL = "no_email"
