package crawlers

import "fmt"

// 页面元素定位表 (XPath)
const (
	LocatorNextPage           = `//a[contains(@class, 'btn-success') and contains(text(), 'Next Questions')]`
	LocatorRobotGate          = `//button[contains(@class, 'g-recaptcha')]`
	LocatorLastPageDisclaimer = `//button[contains(text(), "Close and don't show again")]`

	LocatorCaptchaFrame       = `//iframe[contains(@title, 'Main content of the hCaptcha challenge')]`
	LocatorCaptchaGrid        = `//div[@class='task-grid']`
	LocatorCaptchaDescription = `//div[@class='prompt-text']`
	LocatorCaptchaTile        = `//div[@class='task-grid']/div[@class='task-image']`
	LocatorCaptchaVerify      = `//div[contains(@title, 'Submit Answers') or contains(@title, 'Next Challenge') or contains(@title, 'Skip Challenge')]`

	LocatorQuestionList = `//div[@class='questions-container']/div[contains(@class, 'exam-question-card')]`
)

// 题目卡片内的相对定位
const (
	questionHeader = `./div[contains(@class, 'card-header')]`
	questionBody   = `./div[contains(@class, 'card-body')]`
	questionAnswer = questionBody + `/p[contains(@class, 'question-answer')]`

	questionTitle         = questionHeader + `/text()`
	questionTopic         = questionHeader + `/span[contains(@class, 'question-title-topic')]/text()`
	questionText          = questionBody + `/p[contains(@class, 'card-text')]/text()`
	questionChoices       = questionBody + `/div[contains(@class, 'question-choices-container')]/ul/li`
	questionCommentCount  = questionBody + `/a[contains(@class, 'question-discussion-button')]/span[contains(@class, 'badge')]/text()`
	questionAnswerLetter  = questionAnswer + `/span[@class='correct-answer-box']/span[@class='correct-answer']/text()`
	questionAnswerComment = questionAnswer + `/span[@class='answer-description']/descendant::text()`

	choiceLetter = `./span/text()`
	choiceText   = `./span/following-sibling::text()`
)

// robotGateSelector 静态页面上人机验证入口的CSS选择器
const robotGateSelector = "button.g-recaptcha"

// TileLocator 第n个验证码格子 (从1开始)
func TileLocator(n int) string {
	return fmt.Sprintf("(%s)[%d]", LocatorCaptchaTile, n)
}
