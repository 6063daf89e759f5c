package agent

// User-facing reply texts.
const (
	msgRegistered    = "Token 有效，註冊成功"
	msgInvalidToken  = "Token 無效，請重新註冊，格式為 /register sk-xxxxx"
	msgUnregistered  = "請先註冊 Token，格式為 /register [API TOKEN]"
	msgSystemSet     = "系統指令設定成功"
	msgCleared       = "歷史訊息清除成功"
	msgTransient     = "目前服務忙碌中，請稍後再試"
	msgExtractFailed = "無法擷取此網址的內容，請確認連結是否正確"
	msgErrorCleared  = "發生錯誤，對話紀錄已清除，請重新開始"
	msgError         = "發生錯誤，請稍後再試"
	msgImageFailed   = "圖片產生失敗，請換個描述再試一次"
	msgAudioFailed   = "無法取得這段語音，請再傳送一次"
	msgAudioTooLarge = "語音訊息太長，請縮短後再試"
	msgNoSpeech      = "聽不清楚這段語音，請再試一次"
	msgUnsupported   = "目前只支援文字與語音訊息"
	usageRegister    = "格式：/register [API TOKEN]"
	usageSystem      = "格式：/system [指令內容]"
	usageImage       = "格式：/image [圖片描述]"
)

const helpText = `指令：
/register [API TOKEN] 註冊 API Token
/system [指令內容] 設定助理的系統指令
/clear 清除歷史對話
/image [圖片描述] 依描述產生圖片
/help 顯示本說明
傳送網址會摘要網頁或 YouTube 影片內容，也可以直接傳送語音訊息。`
